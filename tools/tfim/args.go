package tfim

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hupe1980/fragmesh/tool"
)

// args reads typed values out of a tool call. The first failure is kept
// and reported by err.
type args struct {
	tool   string
	values map[string]any
	fail   error
}

func newArgs(toolName string, values map[string]any) *args {
	return &args{tool: toolName, values: values}
}

func (a *args) invalid(format string, v ...any) {
	if a.fail == nil {
		a.fail = tool.NewToolError(a.tool, fmt.Sprintf(format, v...), tool.CodeValidationError)
	}
}

func (a *args) err() error { return a.fail }

func (a *args) lookup(names ...string) (string, any, bool) {
	for _, n := range names {
		if v, ok := a.values[n]; ok && v != nil {
			return n, v, true
		}
	}
	return "", nil, false
}

func (a *args) int(def, lo, hi int, names ...string) int {
	name, v, ok := a.lookup(names...)
	if !ok {
		return def
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) {
			a.invalid("%s must be an integer, got %v", name, x)
			return def
		}
		n = int(x)
	default:
		a.invalid("%s must be an integer, got %T", name, v)
		return def
	}
	if n < lo || n > hi {
		a.invalid("%s must be between %d and %d, got %d", name, lo, hi, n)
		return def
	}
	return n
}

func (a *args) float(def float64, positive bool, names ...string) float64 {
	name, v, ok := a.lookup(names...)
	if !ok {
		return def
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		a.invalid("%s must be a number, got %T", name, v)
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || (positive && f <= 0) {
		a.invalid("%s is out of range: %v", name, f)
		return def
	}
	return f
}

// choice returns the canonical spelling of a case-insensitive option.
// aliases maps accepted spellings to canonical ones.
func (a *args) choice(def string, aliases map[string]string, names ...string) string {
	name, v, ok := a.lookup(names...)
	if !ok {
		return def
	}
	s, isString := v.(string)
	if !isString {
		a.invalid("%s must be a string, got %T", name, v)
		return def
	}
	if c, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	accepted := make([]string, 0, len(aliases))
	for k := range aliases {
		accepted = append(accepted, k)
	}
	slices.Sort(accepted)
	a.invalid("%s %q is not supported (accepted: %s)", name, s, strings.Join(accepted, ", "))
	return def
}
