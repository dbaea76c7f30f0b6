// Package annotate defines user-supplied annotation schemas and the batch
// runner that drives an external classifier over stored records.
//
// A Schema describes a set of typed columns materialized on the content
// table at runtime. The package never touches SQL itself; it validates
// schemas, coerces classifier output to the declared kinds, and hands
// (identifier, field values) pairs to a Sink.
package annotate

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Field kinds. Category is a closed set of string values; the rest map to
// SQLite scalar columns.
const (
	KindInteger  = "integer"
	KindFloat    = "float"
	KindBoolean  = "boolean"
	KindCategory = "category"
	KindText     = "text"
)

var validKinds = map[string]bool{
	KindInteger:  true,
	KindFloat:    true,
	KindBoolean:  true,
	KindCategory: true,
	KindText:     true,
}

var fieldNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Field is one typed annotation column.
type Field struct {
	Name        string   `json:"name" yaml:"name"`
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Kind        string   `json:"kind" yaml:"kind"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	// Range bounds integer and float fields as [min, max] when set.
	Range *[2]float64 `json:"range,omitempty" yaml:"range,omitempty"`
	// Values enumerates the allowed strings for category fields.
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// Schema is a named set of annotation fields, owned by the caller.
type Schema struct {
	Name        string  `json:"schema_name" yaml:"schema_name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []Field `json:"fields" yaml:"fields"`
}

// Validate checks the schema shape: non-empty snake_case field names, no
// duplicates, known kinds, category fields with values.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema name is required")
	}
	if !fieldNameRe.MatchString(s.Name) {
		return fmt.Errorf("schema name %q: lowercase letters, digits and underscores only", s.Name)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s: at least one field is required", s.Name)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field with empty name", s.Name)
		}
		if !fieldNameRe.MatchString(f.Name) {
			return fmt.Errorf("field %q: lowercase letters, digits and underscores only", f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if !validKinds[f.Kind] {
			return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
		if f.Kind == KindCategory && len(f.Values) == 0 {
			return fmt.Errorf("category field %q: values are required", f.Name)
		}
		if f.Range != nil && f.Range[0] > f.Range[1] {
			return fmt.Errorf("field %q: range min exceeds max", f.Name)
		}
	}
	return nil
}

// Field returns the named field, or nil.
func (s *Schema) Field(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// SQLType maps a field kind to its SQLite column type. Booleans are stored
// as 0/1 integers.
func (f *Field) SQLType() string {
	switch f.Kind {
	case KindInteger, KindBoolean:
		return "INTEGER"
	case KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Coerce converts a classifier-produced value to the field's storage form,
// enforcing bounds and allowed values. JSON decoding hands numbers over as
// float64; integers are accepted when whole.
func (f *Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("field %s: nil value", f.Name)
	}
	switch f.Kind {
	case KindInteger:
		n, ok := asFloat(v)
		if !ok || n != float64(int64(n)) {
			return nil, fmt.Errorf("field %s: %v is not an integer", f.Name, v)
		}
		if err := f.checkRange(n); err != nil {
			return nil, err
		}
		return int64(n), nil
	case KindFloat:
		n, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("field %s: %v is not a number", f.Name, v)
		}
		if err := f.checkRange(n); err != nil {
			return nil, err
		}
		return n, nil
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("field %s: %v is not a boolean", f.Name, v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case KindCategory:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: %v is not a string", f.Name, v)
		}
		for _, allowed := range f.Values {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("field %s: %q is not an allowed value", f.Name, s)
	default: // KindText
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: %v is not a string", f.Name, v)
		}
		return s, nil
	}
}

func (f *Field) checkRange(n float64) error {
	if f.Range == nil {
		return nil
	}
	if n < f.Range[0] || n > f.Range[1] {
		return fmt.Errorf("field %s: %g outside range [%g,%g]", f.Name, n, f.Range[0], f.Range[1])
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
