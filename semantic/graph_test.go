package semantic

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/fragmesh/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func chain() map[core.Type][]core.Type {
	return map[core.Type][]core.Type{
		"spec":     {},
		"ham":      {"spec"},
		"solution": {"ham"},
	}
}

func TestNewGraph_Queries(t *testing.T) {
	g, err := NewGraph(chain(), "solution")
	require.NoError(t, err)

	assert.Equal(t, []core.Type{"ham", "solution", "spec"}, g.AllTypes())
	assert.Equal(t, []core.Type{"spec"}, g.DependenciesOf("ham"))
	assert.Empty(t, g.DependenciesOf("spec"))
	assert.Empty(t, g.DependenciesOf("unknown"))
	assert.Equal(t, core.Type("solution"), g.Final())
	assert.Equal(t, 3, g.Len())
	assert.True(t, g.DependsOn("solution", "spec"))
	assert.False(t, g.DependsOn("spec", "solution"))
	assert.Equal(t, []core.Type{"ham", "solution"}, g.Dependents("spec"))
}

func TestNewGraph_ReturnsCopies(t *testing.T) {
	g := MustGraph(chain(), "")
	deps := g.DependenciesOf("ham")
	deps[0] = "mutated"
	assert.Equal(t, []core.Type{"spec"}, g.DependenciesOf("ham"))
}

func TestNewGraph_Cycle(t *testing.T) {
	_, err := NewGraph(map[core.Type][]core.Type{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}, "")
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	if diff := cmp.Diff([]core.Type{"a", "b", "c", "a"}, cycleErr.Path); diff != "" {
		t.Fatalf("cycle path mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestNewGraph_SelfCycle(t *testing.T) {
	_, err := NewGraph(map[core.Type][]core.Type{"a": {"a"}}, "")
	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
}

func TestNewGraph_UnknownDependency(t *testing.T) {
	_, err := NewGraph(map[core.Type][]core.Type{"a": {"missing"}}, "")
	assert.ErrorIs(t, err, ErrUnknownDependency)
}

func TestNewGraph_UnknownFinal(t *testing.T) {
	_, err := NewGraph(chain(), "nope")
	assert.Error(t, err)
}

func TestMustGraph_Panics(t *testing.T) {
	assert.Panics(t, func() { MustGraph(map[core.Type][]core.Type{"a": {"a"}}, "") })
}

func TestTopologicalOrder_RespectsDependencies(t *testing.T) {
	g, err := DefaultSchema().Graph()
	require.NoError(t, err)

	order, anomaly := g.TopologicalOrder([]core.Type{
		CompleteSolution, VQEExecution, Estimator, Optimizer, Ansatz, Hamiltonian, Spec,
	})
	assert.False(t, anomaly)
	require.Len(t, order, 7)

	pos := map[core.Type]int{}
	for i, typ := range order {
		pos[typ] = i
	}
	for _, a := range order {
		for _, b := range order {
			if g.DependsOn(b, a) {
				assert.Less(t, pos[a], pos[b], "%s must precede %s", a, b)
			}
		}
	}
	assert.Equal(t, []core.Type{Spec, Ansatz, Estimator, Hamiltonian, Optimizer, VQEExecution, CompleteSolution}, order)
}

func TestTopologicalOrder_Subset(t *testing.T) {
	g := MustGraph(chain(), "")
	order, anomaly := g.TopologicalOrder([]core.Type{"solution", "spec"})
	assert.False(t, anomaly)
	assert.Equal(t, []core.Type{"spec", "solution"}, order)
}

func TestTopoSort_TransitiveThroughAbsentType(t *testing.T) {
	deps := chain()
	order, anomaly := TopoSort([]core.Type{"solution", "spec"}, func(t core.Type) []core.Type { return deps[t] })
	assert.False(t, anomaly)
	assert.Equal(t, []core.Type{"spec", "solution"}, order)

	deps = map[core.Type][]core.Type{"d": {"c"}, "c": {"b"}, "b": {"a"}}
	order, anomaly = TopoSort([]core.Type{"d", "b", "a"}, func(t core.Type) []core.Type { return deps[t] })
	assert.False(t, anomaly)
	assert.Equal(t, []core.Type{"a", "b", "d"}, order)
}

func TestTopoSort_SelfDependencyIsAnomaly(t *testing.T) {
	deps := map[core.Type][]core.Type{"x": {"x"}, "y": {}}
	order, anomaly := TopoSort([]core.Type{"x", "y"}, func(t core.Type) []core.Type { return deps[t] })
	assert.True(t, anomaly)
	assert.Equal(t, []core.Type{"y", "x"}, order)
}

func TestTopoSort_CycleFallsBackDeterministically(t *testing.T) {
	deps := map[core.Type][]core.Type{"x": {"y"}, "y": {"x"}, "z": {}}
	order, anomaly := TopoSort([]core.Type{"y", "x", "z"}, func(t core.Type) []core.Type { return deps[t] })
	assert.True(t, anomaly)
	assert.Equal(t, []core.Type{"z", "x", "y"}, order)
}
