package util

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ValidationError reports the first argument that does not match a tool's
// parameter schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives an object schema from the exported fields of a struct.
// Field names follow the json tag; `description` and `enum` (comma separated)
// tags are copied. Fields that are neither pointers nor omitempty are
// required.
func CreateSchema(structType any) map[string]any {
	properties := map[string]any{}
	schema := map[string]any{"type": "object", "properties": properties}

	t := reflect.TypeOf(structType)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []string
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}

		prop := map[string]any{"type": jsonType(f.Type)}
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		if e := f.Tag.Get("enum"); e != "" {
			prop["enum"] = strings.Split(e, ",")
		}
		properties[name] = prop

		if f.Type.Kind() != reflect.Pointer && !slices.Contains(strings.Split(opts, ","), "omitempty") {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ValidateParameters checks params against schema: required fields first,
// then the declared type and enum of every known field in name order.
// Unknown fields are allowed.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, name := range stringList(schema["required"]) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		value := params[name]
		want, _ := prop["type"].(string)
		if !matchesType(value, want) {
			return &ValidationError{Field: name, Value: value, Message: fmt.Sprintf("expected type %s, got %T", want, value)}
		}
		if enum := stringList(prop["enum"]); len(enum) > 0 && value != nil {
			if s := fmt.Sprint(value); !slices.Contains(enum, s) {
				return &ValidationError{Field: name, Value: value, Message: fmt.Sprintf("must be one of %s", strings.Join(enum, ", "))}
			}
		}
	}
	return nil
}

// stringList accepts []string (Go literals) and []any (decoded JSON or YAML).
func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, x := range l {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Pointer:
		return jsonType(t.Elem())
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct, reflect.Interface:
		return "object"
	}
	if isInteger(t.Kind()) {
		return "integer"
	}
	return "string"
}

// matchesType reports whether value fits a JSON schema type. nil fits every
// type and unknown type names accept anything. Integral floats count as
// integers because decoded JSON carries every number as float64.
func matchesType(value any, want string) bool {
	if value == nil || want == "" {
		return true
	}
	v := reflect.ValueOf(value)
	k := v.Kind()
	switch want {
	case "string":
		return k == reflect.String
	case "boolean":
		return k == reflect.Bool
	case "integer":
		if k == reflect.Float32 || k == reflect.Float64 {
			f := v.Float()
			return f == float64(int64(f))
		}
		return isInteger(k)
	case "number":
		return isInteger(k) || k == reflect.Float32 || k == reflect.Float64
	case "array":
		return k == reflect.Slice || k == reflect.Array
	case "object":
		if k == reflect.Pointer {
			k = v.Elem().Kind()
		}
		return k == reflect.Map || k == reflect.Struct
	}
	return true
}

func isInteger(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Uint64
}
