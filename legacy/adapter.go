// Package legacy adapts results of tools that return loosely typed records
// instead of fragments.
//
// A legacy record is a map carrying the fragment source under the "Code"
// key (or "code"). The producing tool's semantic type and the canonical
// primary variable come from the schema's static tables.
package legacy

import (
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/semantic"
)

// CodeKeys are the record keys recognized as a code payload, in lookup order.
var CodeKeys = []string{"Code", "code"}

// Adapter turns legacy records into fragments.
type Adapter struct {
	schema *semantic.Schema
	graph  *semantic.Graph
}

// New creates an adapter over schema and its graph.
func New(schema *semantic.Schema, graph *semantic.Graph) *Adapter {
	return &Adapter{schema: schema, graph: graph}
}

// Adapt builds a fragment from record on behalf of tool. It reports false
// when the tool has no type mapping or the record has no code payload.
func (a *Adapter) Adapt(record map[string]any, tool string) (*core.Fragment, bool) {
	typ, ok := a.schema.ToolType(tool)
	if !ok {
		return nil, false
	}
	src, ok := CodePayload(record)
	if !ok {
		return nil, false
	}
	f := core.NewFragment(src, typ, a.schema.VariableFor(typ)).
		WithDependencies(a.graph.DependenciesOf(typ)...).
		WithToolSource(tool)
	if md, ok := record["metadata"].(map[string]any); ok {
		for k, v := range md {
			f.WithMetadata(k, v)
		}
	}
	f.WithMetadata("legacy", true)
	return f, true
}

// AdaptResult applies the legacy shape rule to a raw block value: a
// non-empty sequence whose first element is a record with a code payload.
func (a *Adapter) AdaptResult(value any, tool string) (*core.Fragment, bool) {
	record, ok := FirstRecord(value)
	if !ok {
		return nil, false
	}
	return a.Adapt(record, tool)
}

// FirstRecord returns the first element of value when value is a non-empty
// sequence of records.
func FirstRecord(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case []map[string]any:
		if len(v) > 0 {
			return v[0], true
		}
	case []any:
		if len(v) > 0 {
			m, ok := v[0].(map[string]any)
			return m, ok
		}
	}
	return nil, false
}

// IsLegacyShape reports whether value looks like a legacy tool result.
func IsLegacyShape(value any) bool {
	record, ok := FirstRecord(value)
	if !ok {
		return false
	}
	_, ok = CodePayload(record)
	return ok
}

// CodePayload extracts the code string from a record.
func CodePayload(record map[string]any) (string, bool) {
	for _, k := range CodeKeys {
		if s, ok := record[k].(string); ok {
			return s, true
		}
	}
	return "", false
}
