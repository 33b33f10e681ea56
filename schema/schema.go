// Package schema converts typed record definitions into remote dataset columns.
//
// A record model is a Go struct. Every exported field becomes one column, in declaration
// order. The column name is taken from the json tag when present, and per-field settings
// come from the column tag:
//
//	type Sample struct {
//		Question string   `json:"question"`
//		Verdict  string   `json:"verdict" column:"options=pass|fail"`
//		Tags     []string `json:"tags" column:"options=math|code|chat,width=300"`
//		Score    float64  `json:"score" column:"readonly"`
//		Internal string   `json:"-"`
//	}
package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/datar-psa/evalkit/api"
)

// DefaultWidth is the column width used when a field does not set one.
const DefaultWidth = 255

// Field is one named, typed field of a record model.
type Field struct {
	// Name is the column name (json tag name or Go field name)
	Name string
	// GoName is the struct field name
	GoName string
	// Type is the field's Go type
	Type reflect.Type

	Options   []string
	Width     int
	MaxLength int
	Hidden    bool
	ReadOnly  bool
}

// Model is a typed record definition. It is never mutated after construction.
type Model struct {
	Name   string
	Type   reflect.Type
	Fields []Field
}

// ModelOf builds the Model for struct type T.
func ModelOf[T any]() (*Model, error) {
	return NewModel(reflect.TypeFor[T]())
}

// MustModelOf is like ModelOf but panics on error. Intended for package-level variables.
func MustModelOf[T any]() *Model {
	m, err := ModelOf[T]()
	if err != nil {
		panic(err)
	}
	return m
}

// NewModel builds a Model from a struct value, a pointer to a struct, or a reflect.Type.
func NewModel(v any) (*Model, error) {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	if t == nil {
		return nil, &api.SchemaMappingError{Model: "<nil>", Reason: "record model is nil"}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" {
		name = "Record"
	}
	if t.Kind() != reflect.Struct {
		return nil, &api.SchemaMappingError{Model: name, Type: t, Reason: "record model must be a struct"}
	}

	m := &Model{Name: name, Type: t}
	var depths []int
	if err := m.collect(t, 0, &depths); err != nil {
		return nil, err
	}
	m.dropShadowed(depths)
	return m, nil
}

// collect appends the fields of t, flattening embedded structs. depths records how
// deeply each field is embedded.
func (m *Model) collect(t reflect.Type, depth int, depths *[]int) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		jsonName, skip := jsonFieldName(sf)
		if skip {
			continue
		}

		// Untagged embedded structs are flattened, as encoding/json does.
		if sf.Anonymous && jsonName == "" {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct {
				if err := m.collect(et, depth+1, depths); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}

		f := Field{Name: jsonName, GoName: sf.Name, Type: sf.Type, Width: DefaultWidth}
		if f.Name == "" {
			f.Name = sf.Name
		}
		if err := parseColumnTag(&f, sf.Tag.Get("column")); err != nil {
			return &api.SchemaMappingError{Model: m.Name, Field: f.Name, Type: sf.Type, Reason: err.Error()}
		}
		m.Fields = append(m.Fields, f)
		*depths = append(*depths, depth)
	}
	return nil
}

// dropShadowed removes embedded fields hidden by a shallower field of the same name,
// as encoding/json does. Same-depth conflicts are kept and rejected by ToColumns.
func (m *Model) dropShadowed(depths []int) {
	shallowest := make(map[string]int, len(m.Fields))
	for i, f := range m.Fields {
		if d, ok := shallowest[f.Name]; !ok || depths[i] < d {
			shallowest[f.Name] = depths[i]
		}
	}
	kept := m.Fields[:0]
	for i, f := range m.Fields {
		if depths[i] == shallowest[f.Name] {
			kept = append(kept, f)
		}
	}
	m.Fields = kept
}

func jsonFieldName(sf reflect.StructField) (name string, skip bool) {
	tag, ok := sf.Tag.Lookup("json")
	if !ok {
		return "", false
	}
	if tag == "-" {
		return "", true
	}
	name, _, _ = strings.Cut(tag, ",")
	return name, false
}

func parseColumnTag(f *Field, tag string) error {
	if tag == "" {
		return nil
	}
	for _, part := range strings.Split(tag, ",") {
		key, value, hasValue := strings.Cut(strings.TrimSpace(part), "=")
		switch key {
		case "hidden":
			f.Hidden = true
		case "readonly":
			f.ReadOnly = true
		case "options":
			if !hasValue || value == "" {
				return fmt.Errorf("column tag: options requires a value")
			}
			f.Options = strings.Split(value, "|")
		case "width", "maxLength":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return fmt.Errorf("column tag: %s must be a positive integer, got %q", key, value)
			}
			if key == "width" {
				f.Width = n
			} else {
				f.MaxLength = n
			}
		case "":
		default:
			return fmt.Errorf("column tag: unknown key %q", key)
		}
	}
	return nil
}

// Columns is shorthand for ToColumns(m).
func (m *Model) Columns() ([]api.ColumnDescriptor, error) {
	return ToColumns(m)
}

var timeType = reflect.TypeFor[time.Time]()

// ToColumns maps every field of m to a column descriptor, in field order.
// Descriptor ids are left empty; they are assigned per creation call.
func ToColumns(m *Model) ([]api.ColumnDescriptor, error) {
	if m == nil {
		return nil, &api.SchemaMappingError{Model: "<nil>", Reason: "record model is nil"}
	}

	columns := make([]api.ColumnDescriptor, 0, len(m.Fields))
	seen := make(map[string]bool, len(m.Fields))
	for i, f := range m.Fields {
		if seen[f.Name] {
			return nil, &api.SchemaMappingError{Model: m.Name, Field: f.Name, Type: f.Type, Reason: "duplicate column name"}
		}
		seen[f.Name] = true
		settings := map[string]any{
			"position":   i,
			"width":      f.Width,
			"isVisible":  !f.Hidden,
			"isEditable": !f.ReadOnly,
		}
		typ, reason := mapType(f.Type, f, settings)
		if reason != "" {
			return nil, &api.SchemaMappingError{Model: m.Name, Field: f.Name, Type: f.Type, Reason: reason}
		}
		columns = append(columns, api.ColumnDescriptor{
			Name:     f.Name,
			Type:     typ,
			Settings: settings,
		})
	}
	return columns, nil
}

// mapType is the fixed Go type to column type table. It returns a non-empty reason
// when t has no column equivalent.
func mapType(t reflect.Type, f Field, settings map[string]any) (api.ColumnType, string) {
	if t.Kind() == reflect.Pointer {
		settings["nullable"] = true
		return mapType(t.Elem(), f, settings)
	}
	if len(f.Options) > 0 && !(t.Kind() == reflect.String || isStringSlice(t)) {
		return "", "options are only valid on string and []string fields"
	}

	switch {
	case t == timeType:
		settings["includeTime"] = true
		return api.ColumnDate, ""
	case t.Kind() == reflect.String:
		if len(f.Options) > 0 {
			settings["options"] = optionSettings(f.Options)
			return api.ColumnSelect, ""
		}
		if f.MaxLength > 0 {
			settings["maxLength"] = f.MaxLength
		}
		return api.ColumnLongText, ""
	case isStringSlice(t):
		if len(f.Options) == 0 {
			return "", "multiSelect columns require options"
		}
		settings["options"] = optionSettings(f.Options)
		return api.ColumnMultiSelect, ""
	case t.Kind() == reflect.Bool:
		return api.ColumnCheckbox, ""
	case isInteger(t.Kind()):
		settings["numberType"] = "integer"
		return api.ColumnNumber, ""
	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		settings["numberType"] = "decimal"
		return api.ColumnNumber, ""
	default:
		return "", fmt.Sprintf("no column type for %s fields", t.Kind())
	}
}

func optionSettings(options []string) []map[string]any {
	out := make([]map[string]any, len(options))
	for i, o := range options {
		out[i] = map[string]any{"name": o, "value": o}
	}
	return out
}

func isStringSlice(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
