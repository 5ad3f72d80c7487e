package importer

import (
	"errors"
	"fmt"

	"github.com/pcparts/partsdb/opendb"
)

var (
	// ErrUnsupportedCategory is returned before anything is fetched or written
	// when no mapping exists for the requested category.
	ErrUnsupportedCategory = errors.New("unsupported category")

	// ErrImportInProgress is returned when another import holds the category lock.
	ErrImportInProgress = errors.New("import already in progress")

	// ErrSourceUnavailable is returned when the catalog cannot be fetched.
	ErrSourceUnavailable = opendb.ErrSourceUnavailable
)

// RecordMappingError describes a source record that was skipped.
type RecordMappingError struct {
	Ref     string `json:"ref"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *RecordMappingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %s: %s", e.Ref, e.Message)
	}
	return fmt.Sprintf("record %s: field '%s': %s", e.Ref, e.Field, e.Message)
}

func (e *RecordMappingError) Unwrap() error {
	return e.Err
}
