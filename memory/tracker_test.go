package memory

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/semantic"
)

func chainGraph() *semantic.Graph {
	return semantic.MustGraph(map[core.Type][]core.Type{
		"spec":     {},
		"ham":      {"spec"},
		"solution": {"ham"},
	}, "solution")
}

func fragmentOutcome(typ core.Type) core.Outcome {
	f := core.NewFragment("x := 1", typ, string(typ)).WithToolSource("t")
	return core.Outcome{Status: core.StatusOK, Value: f, Fragment: f}
}

func TestTracker_CompletionPercentage(t *testing.T) {
	tr := NewTracker(chainGraph())
	assert.Equal(t, 0.0, tr.CompletionPercentage())
	assert.Equal(t, []core.Type{"spec"}, tr.NextRequiredTypes())

	tr.RecordStep("Spec_Tool", "make spec", "execution := tool.Execute(nil)", []core.Outcome{fragmentOutcome("spec")})

	assert.Equal(t, "33.3", fmt.Sprintf("%.1f", tr.CompletionPercentage()))
	assert.Equal(t, []core.Type{"ham"}, tr.NextRequiredTypes())
	assert.Equal(t, []core.Type{"spec"}, tr.MissingDependencies("ham"))
	assert.Empty(t, tr.MissingDependencies("spec"))
}

func TestTracker_UndeclaredTypeDoesNotCount(t *testing.T) {
	tr := NewTracker(chainGraph())
	tr.RecordStep("a", "", "", []core.Outcome{fragmentOutcome("spec")})
	step := tr.RecordStep("b", "", "", []core.Outcome{fragmentOutcome("bogus")})

	assert.Len(t, step.Fragments(), 1)
	assert.Len(t, tr.Steps(), 2)
	assert.Equal(t, "33.3", fmt.Sprintf("%.1f", tr.CompletionPercentage()))
	assert.Equal(t, map[core.Type]bool{"spec": true, "ham": false, "solution": false}, tr.Progress())
	assert.Equal(t, []core.Type{"spec"}, tr.ExecutionOrder())
	assert.NoError(t, tr.Verify(map[core.Type]bool{"spec": true, "ham": false, "solution": false}))
}

func TestTracker_EmptyGraph(t *testing.T) {
	tr := NewTracker(semantic.MustGraph(map[core.Type][]core.Type{"only": {}}, "only"))
	assert.Equal(t, 0.0, tr.CompletionPercentage())
	tr.RecordStep("x", "", "", []core.Outcome{fragmentOutcome("only")})
	assert.Equal(t, 100.0, tr.CompletionPercentage())
	assert.True(t, tr.IsComplete())
}

func TestTracker_RecordStepIsNonIdempotent(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := NewTracker(chainGraph(), func(o *Options) { o.Clock = func() time.Time { return now } })

	s1 := tr.RecordStep("Spec_Tool", "a", "src", []core.Outcome{fragmentOutcome("spec")})
	s2 := tr.RecordStep("Spec_Tool", "b", "src", []core.Outcome{fragmentOutcome("spec")})

	assert.Equal(t, 1, s1.Index)
	assert.Equal(t, 2, s2.Index)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, now, s2.Timestamp)
	assert.Len(t, tr.Steps(), 2)
	assert.Equal(t, []core.Type{"spec"}, tr.ExecutionOrder())
	assert.True(t, tr.Progress()["spec"])
}

func TestTracker_ExecutionOrderFirstOccurrence(t *testing.T) {
	tr := NewTracker(chainGraph())
	tr.RecordStep("a", "", "", []core.Outcome{fragmentOutcome("spec")})
	tr.RecordStep("b", "", "", []core.Outcome{fragmentOutcome("ham")})
	latest := fragmentOutcome("spec")
	tr.RecordStep("a", "", "", []core.Outcome{latest})

	assert.Equal(t, []core.Type{"spec", "ham"}, tr.ExecutionOrder())
	fs := tr.Fragments()
	require.Len(t, fs, 2)
	assert.Same(t, latest.Fragment, fs[0])
}

func TestTracker_NonFragmentOutcomesDoNotComplete(t *testing.T) {
	tr := NewTracker(chainGraph())
	tr.RecordStep("a", "", "", []core.Outcome{
		{Status: core.StatusOK, Value: 42},
		{Status: core.StatusTimeout, Value: core.Timeout{After: time.Second}},
	})
	assert.Equal(t, 0.0, tr.CompletionPercentage())
	assert.Empty(t, tr.ExecutionOrder())
	assert.Len(t, tr.Steps(), 1)
}

func TestTracker_RecordFailure(t *testing.T) {
	tr := NewTracker(chainGraph())
	s := tr.RecordFailure("Missing_Tool", "goal", "cmd", errors.New("tool not found"))
	assert.Equal(t, "tool not found", s.Error)
	assert.Equal(t, 1, s.Index)
	assert.Empty(t, s.Outcomes)
}

func TestTracker_IsComplete(t *testing.T) {
	tr := NewTracker(chainGraph())
	assert.False(t, tr.IsComplete())
	tr.RecordStep("a", "", "", []core.Outcome{fragmentOutcome("spec")})
	assert.True(t, tr.IsComplete("spec"))
	assert.False(t, tr.IsComplete("spec", "ham"))
	assert.False(t, tr.IsComplete())
	tr.RecordStep("b", "", "", []core.Outcome{fragmentOutcome("ham"), fragmentOutcome("solution")})
	assert.True(t, tr.IsComplete())
}

func TestTracker_Verify(t *testing.T) {
	tr := NewTracker(chainGraph())
	tr.RecordStep("a", "", "", []core.Outcome{fragmentOutcome("spec")})
	assert.NoError(t, tr.Verify(map[core.Type]bool{"spec": true}))
	err := tr.Verify(map[core.Type]bool{"ham": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ham, spec")
}

func TestTracker_Report(t *testing.T) {
	tr := NewTracker(chainGraph())
	tr.SetQuery("ground state")
	tr.RecordStep("a", "", "", []core.Outcome{fragmentOutcome("spec")})

	report := tr.Report()
	assert.Contains(t, report, "Completion: 33.3%")
	assert.Contains(t, report, "Fragments Generated: 1")
	assert.Contains(t, report, "[x] spec")
	assert.Contains(t, report, "[ ] ham (depends on: spec)")
	assert.Contains(t, report, "Next Required: ham")
	assert.NotContains(t, report, "Workflow Complete")
	assert.Equal(t, "ground state", tr.Query())

	s := tr.Summary()
	assert.Equal(t, 1, s.TotalFragments)
	assert.Equal(t, []core.Type{"spec"}, s.CompletedTypes)
	assert.False(t, s.IsComplete)
}
