package mapping

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FieldType is the expected type of a mapped source value.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInt     FieldType = "int"
	TypeBool    FieldType = "bool"
	TypeStrings FieldType = "strings"
	TypeDecimal FieldType = "decimal"
	TypeUUID    FieldType = "uuid"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeInt, TypeBool, TypeStrings, TypeDecimal, TypeUUID:
		return true
	}
	return false
}

// Field maps one source path onto a product column or spec key.
type Field struct {
	Column   string    `yaml:"column" json:"column"`
	Path     string    `yaml:"path" json:"path"`
	Type     FieldType `yaml:"type" json:"type"`
	Required bool      `yaml:"required" json:"required"`
}

// convert coerces a decoded JSON value (decoded with UseNumber) to the field's type.
func (f Field) convert(value any) (any, *FieldError) {
	switch f.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, typeError(f, value)
		}
		s = strings.TrimSpace(s)
		if strings.ContainsRune(s, 0) {
			return nil, valueError(f, "contains a NUL byte")
		}
		if s == "" && f.Required {
			return nil, requiredError(f)
		}
		return s, nil

	case TypeInt:
		n, err := toInt(value)
		if err != nil {
			return nil, typeError(f, value)
		}
		if n < 0 {
			return nil, valueError(f, "must not be negative, got %d", n)
		}
		return n, nil

	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, typeError(f, value)
		}
		return b, nil

	case TypeStrings:
		items, ok := value.([]any)
		if !ok {
			return nil, typeError(f, value)
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, typeError(f, item)
			}
			if strings.ContainsRune(s, 0) {
				return nil, valueError(f, "contains a NUL byte")
			}
			out = append(out, s)
		}
		return out, nil

	case TypeDecimal:
		var d decimal.Decimal
		var err error
		switch v := value.(type) {
		case json.Number:
			d, err = decimal.NewFromString(v.String())
		case string:
			d, err = decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			d = decimal.NewFromFloat(v)
		default:
			return nil, typeError(f, value)
		}
		if err != nil {
			return nil, valueError(f, "not a decimal number: %v", value)
		}
		if d.IsNegative() {
			return nil, valueError(f, "must not be negative, got %s", d)
		}
		return d, nil

	case TypeUUID:
		s, ok := value.(string)
		if !ok {
			return nil, typeError(f, value)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, valueError(f, "not a UUID: %q", s)
		}
		if id == uuid.Nil {
			return nil, valueError(f, "nil UUID")
		}
		return id, nil
	}

	return nil, valueError(f, "unknown field type %q", f.Type)
}

func toInt(value any) (int64, error) {
	switch v := value.(type) {
	case json.Number:
		return v.Int64()
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	}
	return 0, fmt.Errorf("not an integer: %T", value)
}
