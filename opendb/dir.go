package opendb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirSource reads a local checkout of the dataset (<root>/open-db/<directory>/*.json).
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (s *DirSource) Describe() string {
	return "dir:" + s.root
}

func (s *DirSource) Fetch(ctx context.Context, directory string) ([]Record, error) {
	dir := filepath.Join(s.root, "open-db", directory)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ref := directory + "/" + entry.Name()
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			records = append(records, Record{Ref: ref, Err: err})
			continue
		}
		records = append(records, decodeRecord(ref, data))
	}

	sortRecords(records)
	return records, nil
}
