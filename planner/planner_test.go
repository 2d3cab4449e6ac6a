package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/internal/testutil"
	"github.com/hupe1980/fragmesh/model"
)

func TestParseNextStep(t *testing.T) {
	t.Run("free text", func(t *testing.T) {
		text := "The spec is missing, so we start there.\n\n" +
			"**Context:** query asks for an 8 qubit TFIM\n" +
			"**Sub-Goal:** build the spec fragment\n" +
			"**Tool Name:** Spec_Tool"
		ns, err := ParseNextStep(text)
		require.NoError(t, err)
		assert.Equal(t, "The spec is missing, so we start there.", ns.Justification)
		assert.Equal(t, "query asks for an 8 qubit TFIM", ns.Context)
		assert.Equal(t, "build the spec fragment", ns.SubGoal)
		assert.Equal(t, "Spec_Tool", ns.ToolName)
	})

	t.Run("last triple wins", func(t *testing.T) {
		text := "Context: a\nSub-Goal: b\nTool Name: First_Tool\n\n" +
			"Context: c\nSub-Goal: d\nTool Name: Second_Tool\n"
		ns, err := ParseNextStep(text)
		require.NoError(t, err)
		assert.Equal(t, "Second_Tool", ns.ToolName)
		assert.Equal(t, "c", ns.Context)
	})

	t.Run("json", func(t *testing.T) {
		text := "```json\n{\"context\": \" c \", \"sub_goal\": \"g\", \"tool_name\": \"Ham_Tool\"}\n```"
		ns, err := ParseNextStep(text)
		require.NoError(t, err)
		assert.Equal(t, NextStep{Context: "c", SubGoal: "g", ToolName: "Ham_Tool"}, ns)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ParseNextStep("I am not sure what to do.")
		assert.ErrorIs(t, err, ErrNoNextStep)
	})
}

func TestParseCommand(t *testing.T) {
	text := "Analysis: the spec exists\n" +
		"Command Explanation: pass the spec\n" +
		"Generated Command:\n```go\nexecution := tool.Execute(map[string]any{\"spec_fragment\": spec})\n```\n"
	tc := ParseCommand(text)
	assert.Equal(t, "the spec exists", tc.Analysis)
	assert.Equal(t, "pass the spec", tc.Explanation)
	assert.Equal(t, `execution := tool.Execute(map[string]any{"spec_fragment": spec})`, tc.Command)

	empty := ParseCommand("nothing useful")
	assert.Equal(t, ToolCommand{Analysis: NoAnalysis, Explanation: NoExplanation, Command: NoCommand}, empty)

	js := ParseCommand(`{"analysis": "a", "explanation": "e", "command": "` + "```go\\nexecution := tool.Execute(nil)\\n```" + `"}`)
	assert.Equal(t, "execution := tool.Execute(nil)", js.Command)
}

func TestParseVerification(t *testing.T) {
	tests := []struct {
		name string
		text string
		stop bool
	}{
		{"stop", "Explanation:\nall done\n\nConclusion: STOP", true},
		{"continue", "Explanation:\nneed ham\n\nConclusion: CONTINUE", false},
		{"bold", "**Conclusion**: **stop**", true},
		{"last wins", "Conclusion: STOP was considered.\nConclusion: CONTINUE", false},
		{"fallback stop", "We should stop here.", true},
		{"fallback continue", "More work is needed.", false},
		{"json", `{"analysis": "x", "stop_signal": true}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseVerification(tt.text)
			assert.Equal(t, tt.stop, v.StopSignal)
		})
	}
	assert.Equal(t, ConclusionStop, Verification{StopSignal: true}.Conclusion())
	assert.Equal(t, ConclusionContinue, Verification{}.Conclusion())
}

func plannerFixture(t *testing.T, m model.Model, optFns ...func(o *Options)) (*Planner, *testutil.Session) {
	t.Helper()
	s := testutil.NewSessionBuilder(testutil.SmallSchema()).
		Tools(
			testutil.FragmentTool("Spec_Tool", testutil.NewFragmentBuilder("spec").Code("spec_ir := 1").Primary("spec_ir").Build()),
			testutil.FragmentTool("Ham_Tool", testutil.NewFragmentBuilder("ham").Code("hamiltonian := spec_ir").Primary("hamiltonian").DependsOn("spec").Build()),
			testutil.EchoTool("Spec_Tool_Legacy"),
		).
		Fragments(testutil.NewFragmentBuilder("spec").Code("spec_ir := 1").Primary("spec_ir").Captured(map[string]any{"spec_ir": 1}).Build()).
		Build()
	return New(m, s.Catalog, s.Schema, s.Graph, optFns...), s
}

func TestPlanner_NormalizeToolName(t *testing.T) {
	p, _ := plannerFixture(t, model.NewMockModel("mock", "test"))

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Spec_Tool", "Spec_Tool", true},
		{"spec_tool", "Spec_Tool", true},
		{"`Ham_Tool`", "Ham_Tool", true},
		{"Ham_Tool (for the hamiltonian)", "Ham_Tool", true},
		{"Spec_Tool_Legacy please", "Spec_Tool_Legacy", true},
		{"Unknown", "", false},
	}
	for _, tt := range tests {
		got, ok := p.NormalizeToolName(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPlanner_NextStep(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue("Context: spec exists\nSub-Goal: build ham\nTool Name: ham_tool")
	p, s := plannerFixture(t, m)

	steps := []core.Step{
		testutil.NewStepBuilder("Spec_Tool").Index(1).SubGoal("spec").Fragment(s.Registry.Fragments()[0]).Build(),
	}
	ns, err := p.NextStep(context.Background(), "solve tfim", "analysis", steps, StateOf(s.Registry, s.Namespace), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, "Ham_Tool", ns.ToolName)
	assert.Equal(t, "build ham", ns.SubGoal)

	calls := m.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Messages[len(calls[0].Messages)-1].Content
	assert.Contains(t, prompt, "Completed semantic types: spec")
	assert.Contains(t, prompt, "Next possible types: ham")
	assert.Contains(t, prompt, "Current Step: 2 in 5 steps")
	assert.Contains(t, prompt, "Remaining Steps: 3")
	assert.Contains(t, prompt, "Action Step 1:")
	assert.Contains(t, prompt, "- ham: [spec]")
	assert.Contains(t, prompt, "- Ham_Tool -> ham")
}

func TestPlanner_NextStepUnknownTool(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue("Context: c\nSub-Goal: g\nTool Name: Quantum_Oracle")
	p, s := plannerFixture(t, m)

	ns, err := p.NextStep(context.Background(), "q", "", nil, StateOf(s.Registry, s.Namespace), 1, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMatchedTool))
	assert.Equal(t, "Quantum_Oracle", ns.ToolName)
}

func TestPlanner_MaxModelCalls(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	p, _ := plannerFixture(t, m, func(o *Options) { o.MaxModelCalls = 2 })

	_, err := p.AnalyzeQuery(context.Background(), "q1")
	require.NoError(t, err)
	_, err = p.AnalyzeQuery(context.Background(), "q2")
	require.NoError(t, err)

	_, err = p.AnalyzeQuery(context.Background(), "q3")
	assert.ErrorIs(t, err, core.ErrCallLimit)
	assert.Len(t, m.Calls(), 2)
	assert.Equal(t, 2, p.ModelCalls())
}

func TestPlanner_GenerateCommand(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddRule("Selected Tool: Ham_Tool", "Analysis: a\nCommand Explanation: e\nGenerated Command:\n```go\nexecution := tool.Execute(map[string]any{\"spec_fragment\": spec})\n```")
	p, s := plannerFixture(t, m)

	tc, err := p.GenerateCommand(context.Background(), "q", NextStep{Context: "c", SubGoal: "g", ToolName: "Ham_Tool"}, StateOf(s.Registry, s.Namespace))
	require.NoError(t, err)
	assert.Equal(t, `execution := tool.Execute(map[string]any{"spec_fragment": spec})`, tc.Command)

	prompt := m.Calls()[0].Messages[len(m.Calls()[0].Messages)-1].Content
	assert.Contains(t, prompt, "Available variables: spec_ir")
	assert.Contains(t, prompt, `"name": "Ham_Tool"`)
	assert.NotContains(t, prompt, `"name": "Spec_Tool"`)
}

func TestPlanner_Verify(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue("Explanation:\nham is missing\n\nConclusion: CONTINUE")
	p, s := plannerFixture(t, m)

	v, err := p.Verify(context.Background(), "q", "a", nil, StateOf(s.Registry, s.Namespace))
	require.NoError(t, err)
	assert.False(t, v.StopSignal)

	prompt := m.Calls()[0].Messages[len(m.Calls()[0].Messages)-1].Content
	assert.Contains(t, prompt, "Missing semantic types: ham, solution")
	assert.Contains(t, prompt, "ONLY complete when a solution fragment exists")
}

func TestPlanner_Outputs(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddRule("Semantic Components Generated", "final summary")
	m.AddRule("Complete Solution Available: false", "direct answer")
	p, s := plannerFixture(t, m)
	state := StateOf(s.Registry, s.Namespace)

	out, err := p.FinalOutput(context.Background(), "q", nil, state)
	require.NoError(t, err)
	assert.Equal(t, "final summary", out)

	out, err = p.DirectOutput(context.Background(), "q", "", nil, state)
	require.NoError(t, err)
	assert.Equal(t, "direct answer", out)
	prompt := m.Calls()[1].Messages[len(m.Calls()[1].Messages)-1].Content
	assert.Contains(t, prompt, "Initial Analysis: Not available")
	assert.Contains(t, prompt, "Semantic Fragments: 1 fragments generated")
}

func TestFormatActions(t *testing.T) {
	assert.Equal(t, "No previous steps.", FormatActions(nil, 0))

	steps := []core.Step{
		testutil.NewStepBuilder("Echo").Index(1).SubGoal("g").Source("src").Raw(strings.Repeat("x", 50)).Build(),
		testutil.NewStepBuilder("Broken").Index(2).Failed("tool exploded").Build(),
	}
	out := FormatActions(steps, 10)
	assert.Contains(t, out, "Action Step 1:\n  Tool: Echo\n  Sub-Goal: g\n  Command: src")
	assert.Contains(t, out, "Result 1 (ok): xxxxxxxxxx...")
	assert.Contains(t, out, "Action Step 2:")
	assert.Contains(t, out, "Error: tool exploded")
}
