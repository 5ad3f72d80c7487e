// Package opendb reads category documents from the buildcores OpenDB dataset.
package opendb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/pcparts/partsdb/config"
	"go.uber.org/zap"
)

// ErrSourceUnavailable is returned when the catalog cannot be fetched:
// unreachable host, timeout, non-success status or a missing category directory.
var ErrSourceUnavailable = errors.New("opendb source unavailable")

// Record is one JSON document of a category directory.
type Record struct {
	// Ref identifies the document, e.g. "CPU/0b7c8a43-....json".
	Ref  string
	Data map[string]any
	// Err is set when the document could not be decoded; Data is nil then.
	Err error
}

// Source fetches every document stored under an OpenDB category directory.
type Source interface {
	Fetch(ctx context.Context, directory string) ([]Record, error)
	Describe() string
}

// New builds the source selected by cfg.Source.
func New(cfg config.OpenDBConfig, logger *zap.Logger) (Source, error) {
	switch cfg.Source {
	case "archive":
		return NewArchiveSource(cfg.ArchiveURL,
			WithToken(cfg.Token),
			WithTimeout(cfg.Timeout),
			WithRetry(cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
			WithLogger(logger),
		), nil
	case "dir":
		return NewDirSource(cfg.LocalPath), nil
	}
	return nil, fmt.Errorf("unsupported opendb source %q", cfg.Source)
}

// decodeRecord parses a document keeping numbers as json.Number so integer and
// decimal fields are converted without float rounding.
func decodeRecord(ref string, data []byte) Record {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Record{Ref: ref, Err: fmt.Errorf("decode %s: %w", ref, err)}
	}
	if doc == nil {
		return Record{Ref: ref, Err: fmt.Errorf("decode %s: document is null", ref)}
	}
	return Record{Ref: ref, Data: doc}
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].Ref < records[j].Ref })
}
