// Package mapping turns OpenDB JSON documents into products.
//
// A Mapping lists, per category, which dotted source path feeds which product column.
// Columns that are not part of the common product shape are kept in Product.Specs.
package mapping

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pcparts/partsdb/models"
	"github.com/shopspring/decimal"
)

// Common product columns.
const (
	ColumnOpenDBID        = "opendb_id"
	ColumnName            = "name"
	ColumnManufacturer    = "manufacturer"
	ColumnPartNumbers     = "part_numbers"
	ColumnSeries          = "series"
	ColumnVariant         = "variant"
	ColumnReleaseYear     = "release_year"
	ColumnManufacturerURL = "manufacturer_url"
	ColumnPrice           = "price"
)

// productColumns gives the type each common column must be mapped with.
var productColumns = map[string]FieldType{
	ColumnOpenDBID:        TypeUUID,
	ColumnName:            TypeString,
	ColumnManufacturer:    TypeString,
	ColumnPartNumbers:     TypeStrings,
	ColumnSeries:          TypeString,
	ColumnVariant:         TypeString,
	ColumnReleaseYear:     TypeInt,
	ColumnManufacturerURL: TypeString,
	ColumnPrice:           TypeDecimal,
}

// structColumns translates validator struct field names back to column names.
var structColumns = map[string]string{
	"OpenDBID":        ColumnOpenDBID,
	"Name":            ColumnName,
	"Manufacturer":    ColumnManufacturer,
	"Series":          ColumnSeries,
	"Variant":         ColumnVariant,
	"ReleaseYear":     ColumnReleaseYear,
	"ManufacturerURL": ColumnManufacturerURL,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// MaxPrice is the smallest price that no longer fits the decimal(10,2) price column
// once rounded to cents.
var MaxPrice = decimal.New(1, 8)

// Widths of the categories.code and categories.name columns.
const (
	MaxCodeLength = 50
	MaxNameLength = 100
)

// Mapping describes how one OpenDB category is imported.
type Mapping struct {
	// Category is the label operators pass to the importer, e.g. "CPU".
	Category string
	// Name is a human readable label stored on the category row.
	Name string
	// Directory is the open-db folder holding the category's documents.
	Directory string
	Fields    []Field
}

// Code is the normalised category key used for storage and lookups.
func (m *Mapping) Code() string {
	return strings.ToLower(strings.TrimSpace(m.Category))
}

// Validate checks that the mapping can produce storable products.
func (m *Mapping) Validate() error {
	if strings.TrimSpace(m.Category) == "" {
		return fmt.Errorf("%w: category is empty", ErrInvalidMapping)
	}
	if utf8.RuneCountInString(m.Code()) > MaxCodeLength {
		return fmt.Errorf("%w: category code is longer than %d characters", ErrInvalidMapping, MaxCodeLength)
	}
	if utf8.RuneCountInString(m.Name) > MaxNameLength {
		return fmt.Errorf("%w: %s: name is longer than %d characters", ErrInvalidMapping, m.Code(), MaxNameLength)
	}
	if strings.TrimSpace(m.Directory) == "" || strings.ContainsAny(m.Directory, `/\`) || m.Directory == ".." {
		return fmt.Errorf("%w: %s: directory %q must be a single path element", ErrInvalidMapping, m.Category, m.Directory)
	}

	seen := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		if f.Column == "" || f.Path == "" {
			return fmt.Errorf("%w: %s: field needs both column and path", ErrInvalidMapping, m.Category)
		}
		if seen[f.Column] {
			return fmt.Errorf("%w: %s: column %q mapped twice", ErrInvalidMapping, m.Category, f.Column)
		}
		seen[f.Column] = true
		if !f.Type.valid() {
			return fmt.Errorf("%w: %s: column %q has unknown type %q", ErrInvalidMapping, m.Category, f.Column, f.Type)
		}
		if want, ok := productColumns[f.Column]; ok && want != f.Type {
			return fmt.Errorf("%w: %s: column %q must be of type %s", ErrInvalidMapping, m.Category, f.Column, want)
		}
	}

	for _, column := range []string{ColumnOpenDBID, ColumnName, ColumnPrice} {
		if !m.requires(column) {
			return fmt.Errorf("%w: %s: column %q must be mapped as required", ErrInvalidMapping, m.Category, column)
		}
	}
	return nil
}

func (m *Mapping) requires(column string) bool {
	for _, f := range m.Fields {
		if f.Column == column {
			return f.Required
		}
	}
	return false
}

// Map converts one decoded document into an unsaved product. The returned error is
// always a *FieldError.
func (m *Mapping) Map(doc map[string]any) (*models.Product, error) {
	p := &models.Product{Specs: models.Specs{}}

	for _, f := range m.Fields {
		raw := Lookup(doc, f.Path)
		if raw == nil {
			if f.Required {
				return nil, requiredError(f)
			}
			continue
		}

		value, ferr := f.convert(raw)
		if ferr != nil {
			return nil, ferr
		}
		if f.Column == ColumnPrice {
			if price := value.(decimal.Decimal); price.Round(2).GreaterThanOrEqual(MaxPrice) {
				return nil, valueError(f, "must be below %s, got %s", MaxPrice, price)
			}
		}
		assign(p, f.Column, value)
	}

	if err := validate.Struct(p); err != nil {
		return nil, validationError(err)
	}
	return p, nil
}

func assign(p *models.Product, column string, value any) {
	switch column {
	case ColumnOpenDBID:
		p.OpenDBID = value.(uuid.UUID)
	case ColumnName:
		p.Name = value.(string)
	case ColumnManufacturer:
		p.Manufacturer = value.(string)
	case ColumnPartNumbers:
		p.PartNumbers = models.StringList(value.([]string))
	case ColumnSeries:
		p.Series = value.(string)
	case ColumnVariant:
		p.Variant = value.(string)
	case ColumnReleaseYear:
		year := int(value.(int64))
		p.ReleaseYear = &year
	case ColumnManufacturerURL:
		p.ManufacturerURL = value.(string)
	case ColumnPrice:
		p.Price = value.(decimal.Decimal)
	default:
		p.Specs[column] = value
	}
}

func validationError(err error) *FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &FieldError{Code: ErrCodeValidation, Message: err.Error()}
	}

	fe := verrs[0]
	column := structColumns[fe.StructField()]
	if column == "" {
		column = fe.StructField()
	}
	msg := fmt.Sprintf("failed '%s' validation", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed '%s=%s' validation", fe.Tag(), fe.Param())
	}
	return &FieldError{Field: column, Code: ErrCodeValidation, Message: msg}
}
