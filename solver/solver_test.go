package solver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fragmesh/artifact"
	"github.com/hupe1980/fragmesh/code/yaegi"
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/engine"
	"github.com/hupe1980/fragmesh/internal/testutil"
	"github.com/hupe1980/fragmesh/model"
	"github.com/hupe1980/fragmesh/planner"
	"github.com/hupe1980/fragmesh/tool"
)

const (
	nextStepMarker = "Determine the optimal next step"
	verifyMarker   = "Semantic Completeness Check"
)

func command(src string) string {
	return "Analysis: ok\nCommand Explanation: run it\nGenerated Command:\n```go\n" + src + "\n```"
}

func nextStep(toolName string) string {
	return "Context: previous fragments\nSub-Goal: produce the next fragment\nTool Name: " + toolName
}

func newSolver(t *testing.T, m model.Model, optFns ...func(o *Options)) (*Solver, *testutil.Session) {
	t.Helper()
	return newLimitedSolver(t, m, 0, optFns...)
}

func newLimitedSolver(t *testing.T, m model.Model, maxCalls int, optFns ...func(o *Options)) (*Solver, *testutil.Session) {
	t.Helper()
	s := testutil.NewSessionBuilder(testutil.SmallSchema()).
		Tools(
			testutil.FragmentTool("Spec_Tool", testutil.NewFragmentBuilder("spec").Code("spec_ir := 4").Primary("spec_ir").Tool("Spec_Tool").Build()),
			testutil.FragmentTool("Ham_Tool", testutil.NewFragmentBuilder("ham").Code("hamiltonian := spec_ir * 2").Primary("hamiltonian").DependsOn("spec").Tool("Ham_Tool").Build()),
		).
		Build()
	require.NoError(t, s.Catalog.Register(tool.AssemblerFactory(s.Graph)))

	e := engine.New(s.Registry, s.Namespace, s.Catalog, yaegi.New(), s.Adapter, func(o *engine.Options) {
		o.BlockTimeout = 30 * time.Second
	})
	p := planner.New(m, s.Catalog, s.Schema, s.Graph, func(o *planner.Options) { o.MaxModelCalls = maxCalls })
	return New(p, e, optFns...), s
}

func TestSolver_CompletesWorkflow(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddRule("Current Step: 1 in", nextStep("Spec_Tool"))
	m.AddRule("Current Step: 2 in", nextStep("ham_tool"))
	m.AddRule("Current Step: 3 in", nextStep(tool.AssemblerToolName))
	m.AddRule("Selected Tool: Spec_Tool", command(`execution := tool.Execute(map[string]any{"n_qubits": 4})`))
	m.AddRule("Selected Tool: Ham_Tool", command(`execution := tool.Execute(map[string]any{"spec_fragment": spec})`))
	m.AddRule("Selected Tool: "+tool.AssemblerToolName, command(`execution := tool.Execute(map[string]any{"fragments": fragments, "solution_name": "tfim"})`))
	m.AddRule(verifyMarker, "Explanation:\nsolution missing\n\nConclusion: CONTINUE")
	m.AddRule("Output Structure:", "final summary")
	m.AddRule("Please generate the completed Go code", "direct answer")
	m.AddRule("Analyze the query", "needs spec, ham and solution")

	store := artifact.NewInMemoryStore()
	sv, _ := newSolver(t, m, func(o *Options) {
		o.SessionID = "sess-1"
		o.MaxSteps = 5
		o.Store = store
	})

	res, err := sv.Solve(context.Background(), "build the tfim solution")
	require.NoError(t, err)

	assert.Equal(t, StopComplete, res.StopReason)
	assert.Equal(t, "needs spec, ham and solution", res.Analysis)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, []string{"Spec_Tool", "Ham_Tool", tool.AssemblerToolName},
		[]string{res.Steps[0].Tool, res.Steps[1].Tool, res.Steps[2].Tool})
	for _, st := range res.Steps {
		require.Len(t, st.Outcomes, 1)
		assert.Equal(t, core.StatusOK, st.Outcomes[0].Status, st.Outcomes[0].Message)
	}

	assert.Equal(t, 3, res.Status.FragmentCount)
	assert.True(t, res.Status.FinalAvailable)
	assert.Equal(t, 100.0, res.Status.CompletionPercentage)
	assert.Equal(t, []core.Type{"spec", "ham", "solution"}, res.Status.CompletedTypes)
	assert.Contains(t, res.Status.Variables, "hamiltonian")
	assert.True(t, res.Summary.IsComplete)

	assert.Contains(t, res.Program, "spec_ir := 4")
	assert.Less(t, strings.Index(res.Program, "spec_ir := 4"), strings.Index(res.Program, "hamiltonian := spec_ir * 2"))
	assert.Equal(t, "final summary", res.FinalOutput)
	assert.Equal(t, "direct answer", res.DirectOutput)

	assert.Equal(t, []string{
		"ham_Ham_Tool.go",
		"solution.go",
		"solution_" + tool.AssemblerToolName + ".go",
		"spec_Spec_Tool.go",
		"status.json",
	}, res.Artifacts)
	saved, err := store.Get("sess-1", artifact.ProgramID)
	require.NoError(t, err)
	assert.Equal(t, res.Program, string(saved))

	assert.NoError(t, sv.Tracker().Verify(res.Status.Completion))
}

func TestSolver_VerifiedStop(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddRule(nextStepMarker, nextStep("Spec_Tool"))
	m.AddRule("Selected Tool: Spec_Tool", command(`execution := tool.Execute(map[string]any{})`))
	m.AddRule(verifyMarker, "Explanation:\nenough\n\nConclusion: STOP")

	sv, s := newSolver(t, m, func(o *Options) { o.OutputTypes = nil })
	res, err := sv.Solve(context.Background(), "just the spec")
	require.NoError(t, err)

	assert.Equal(t, StopVerified, res.StopReason)
	assert.Len(t, res.Steps, 1)
	assert.True(t, s.Registry.Has("spec"))
	assert.Empty(t, res.FinalOutput)
	assert.Contains(t, res.Program, "// ===== SPEC SECTION =====")
	assert.NotEmpty(t, sv.SessionID())
}

func TestSolver_UnknownToolUsesUpSteps(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddRule(nextStepMarker, nextStep("Quantum_Oracle"))

	sv, _ := newSolver(t, m, func(o *Options) {
		o.MaxSteps = 2
		o.OutputTypes = nil
	})
	res, err := sv.Solve(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, StopMaxSteps, res.StopReason)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "Quantum_Oracle", res.Steps[0].Tool)
	assert.Contains(t, res.Steps[0].Error, "no matched tool")
	assert.Empty(t, res.Program)
	assert.Zero(t, res.Status.FragmentCount)
	for _, c := range m.Calls() {
		assert.NotContains(t, c.Messages[len(c.Messages)-1].Content, verifyMarker)
	}
}

func TestSolver_MissingCommandIsRecorded(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddRule(nextStepMarker, nextStep("Spec_Tool"))
	m.AddRule("Selected Tool:", "I would call the spec tool.")

	sv, _ := newSolver(t, m, func(o *Options) {
		o.MaxSteps = 1
		o.OutputTypes = nil
	})
	res, err := sv.Solve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, planner.NoCommand, res.Steps[0].Error)
}

func TestSolver_TimeBudget(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Minute)
	}

	sv, _ := newSolver(t, m, func(o *Options) {
		o.Clock = clock
		o.TimeBudget = 30 * time.Second
		o.OutputTypes = nil
	})
	res, err := sv.Solve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, StopTimeBudget, res.StopReason)
	assert.Empty(t, res.Steps)
}

func TestSolver_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := model.NewMockModel("mock", "test")
	m.AddRule(nextStepMarker, nextStep("Cancel_Tool"))
	m.AddRule("Selected Tool: Cancel_Tool", command(`execution := tool.Execute(map[string]any{})`))

	sv, s := newSolver(t, m, func(o *Options) { o.MaxSteps = 3 })
	require.NoError(t, s.Catalog.RegisterTool(testutil.StubTool("Cancel_Tool", func(context.Context, map[string]any) (any, error) {
		cancel()
		return "stopped", nil
	})))

	res, err := sv.Solve(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, StopCanceled, res.StopReason)
	assert.Len(t, res.Steps, 1)
	assert.Empty(t, res.FinalOutput)
}

func TestSolver_CallLimit(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddRule("Current Step: 1 in", nextStep("Spec_Tool"))
	m.AddRule("Selected Tool: Spec_Tool", command(`execution := tool.Execute(map[string]any{})`))
	m.AddRule(verifyMarker, "Explanation:\nmissing\n\nConclusion: CONTINUE")

	// analyze, next step and command fit; the verification does not.
	sv, s := newLimitedSolver(t, m, 3, func(o *Options) { o.MaxSteps = 5 })
	res, err := sv.Solve(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, StopCallLimit, res.StopReason)
	require.Len(t, res.Steps, 1)
	assert.True(t, s.Registry.Has("spec"))
	assert.Empty(t, res.FinalOutput)
	assert.Len(t, m.Calls(), 3)
}

func TestSolver_OracleFailure(t *testing.T) {
	sv, _ := newSolver(t, failingModel{})
	res, err := sv.Solve(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorContains(t, err, "oracle unavailable")
	require.NotNil(t, res)
	assert.Empty(t, res.Steps)
}

type failingModel struct{}

func (failingModel) Generate(context.Context, model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	errCh <- errors.New("oracle unavailable")
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (failingModel) Info() model.Info { return model.Info{Name: "failing", Provider: "test"} }
