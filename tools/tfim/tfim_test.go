package tfim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fragmesh/code"
	"github.com/hupe1980/fragmesh/code/yaegi"
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/engine"
	"github.com/hupe1980/fragmesh/internal/testutil"
	"github.com/hupe1980/fragmesh/legacy"
	"github.com/hupe1980/fragmesh/semantic"
	"github.com/hupe1980/fragmesh/tool"
)

func TestRegister(t *testing.T) {
	s := testutil.NewSessionBuilder(nil).Build()
	require.NoError(t, Register(s.Catalog, s.Graph))

	assert.ElementsMatch(t, []string{
		SpecToolName, HamiltonianToolName, AnsatzToolName, OptimizerToolName,
		EstimatorToolName, VQEToolName, tool.AssemblerToolName,
	}, s.Catalog.Names())
	assert.Equal(t, []string{OptimizerToolName}, s.Catalog.Legacy())

	report := s.Catalog.ValidateWorkflow(s.Graph.AllTypes(), s.Schema.ToolType)
	assert.Empty(t, report.Missing)

	err := Register(s.Catalog, s.Graph)
	assert.Error(t, err)
}

func TestSpecTool(t *testing.T) {
	out, err := NewSpecTool().Execute(context.Background(), map[string]any{
		"n_qubits": 6.0, "boundary": "PBC", "J": 0.5, "h": 2,
	})
	require.NoError(t, err)
	f, ok := out.(*core.Fragment)
	require.True(t, ok)

	assert.Equal(t, semantic.Spec, f.SemanticType)
	assert.Equal(t, "spec_ir", f.PrimaryVariable)
	assert.Equal(t, []string{"spec_ir", "spec_n", "spec_j", "spec_h", "spec_periodic"}, f.Provides)
	assert.Contains(t, f.Code, "spec_n := 6\n")
	assert.Contains(t, f.Code, "spec_j := float64(0.5)")
	assert.Contains(t, f.Code, "spec_h := float64(2)")
	assert.Contains(t, f.Code, "spec_periodic := true")
	assert.Equal(t, "periodic", f.Metadata["boundary"])
	assert.Equal(t, SpecToolName, f.ToolSource)
}

func TestSpecTool_Validation(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		msg  string
	}{
		{"missing size", map[string]any{}, "n_qubits"},
		{"too small", map[string]any{"n_qubits": 1}, "between 2 and 20"},
		{"fractional", map[string]any{"n_qubits": 4.5}, "must be an integer"},
		{"boundary", map[string]any{"n_qubits": 4, "boundary": "twisted"}, `boundary "twisted" is not supported`},
		{"model", map[string]any{"n_qubits": 4, "model": "Heisenberg"}, "model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSpecTool().Execute(context.Background(), tt.args)
			var te *tool.ToolError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tool.CodeValidationError, te.Code)
			assert.Contains(t, te.Error(), tt.msg)
		})
	}
}

func TestHamiltonianTool_RejectsWrongFragment(t *testing.T) {
	_, err := NewHamiltonianTool().Execute(context.Background(), map[string]any{
		"spec_fragment": core.NewFragment("ansatz := 1", semantic.Ansatz, "ansatz"),
	})
	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "expected a spec fragment")
}

func TestOptimizerTool_LegacyShape(t *testing.T) {
	out, err := NewOptimizerTool().Execute(context.Background(), map[string]any{"method": "SPSA", "max_iter": 50})
	require.NoError(t, err)
	require.True(t, legacy.IsLegacyShape(out))

	record, _ := legacy.FirstRecord(out)
	src, _ := legacy.CodePayload(record)
	assert.Contains(t, src, `"method":        "spsa"`)
	assert.Contains(t, src, `"max_iter":      50`)
	assert.Equal(t, "spsa", record["metadata"].(map[string]any)["method"])

	_, err = NewOptimizerTool().Execute(context.Background(), map[string]any{"learning_rate": -1.0})
	assert.Error(t, err)
}

func TestEstimatorTool(t *testing.T) {
	out, err := NewEstimatorTool().Execute(context.Background(), map[string]any{"kind": "exact", "shots": 99})
	require.NoError(t, err)
	f := out.(*core.Fragment)
	assert.Contains(t, f.Code, `"shots": 0,`)

	out, err = NewEstimatorTool().Execute(context.Background(), map[string]any{"kind": "primitive"})
	require.NoError(t, err)
	f = out.(*core.Fragment)
	assert.Contains(t, f.Code, `"kind":  "sampled"`)
	assert.Contains(t, f.Code, `"shots": 1024,`)
}

func TestPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewSessionBuilder(nil).Build()
	require.NoError(t, Register(s.Catalog, s.Graph))
	e := engine.New(s.Registry, s.Namespace, s.Catalog, yaegi.New(), s.Adapter, func(o *engine.Options) {
		o.BlockTimeout = time.Minute
	})

	steps := []struct {
		tool    string
		command string
	}{
		{SpecToolName, `execution := tool.Execute(map[string]any{"model": "TFIM", "n_qubits": 4, "boundary": "periodic"})`},
		{HamiltonianToolName, `execution := tool.Execute(map[string]any{"spec_fragment": spec})`},
		{AnsatzToolName, `execution := tool.Execute(map[string]any{"ansatz_type": "ry_product"})`},
		{OptimizerToolName, `execution := tool.Execute(map[string]any{"method": "gradient_descent", "max_iter": 500})`},
		{EstimatorToolName, `execution := tool.Execute(map[string]any{"kind": "exact"})`},
		{VQEToolName, `execution := tool.Execute(map[string]any{})`},
		{tool.AssemblerToolName, `execution := tool.Execute(map[string]any{"fragments": fragments, "solution_name": "tfim_vqe"})`},
	}
	for _, st := range steps {
		outcomes, err := e.ExecuteCommand(ctx, st.tool, st.command)
		require.NoError(t, err, st.tool)
		require.Len(t, outcomes, 1, st.tool)
		require.Equal(t, core.StatusOK, outcomes[0].Status, outcomes[0].Message)
		require.NotNil(t, outcomes[0].Fragment, st.tool)
	}

	v, ok := s.Namespace.Get("hamiltonian")
	require.True(t, ok)
	terms := v.(map[string]float64)
	assert.Len(t, terms, 8)
	assert.Equal(t, -1.0, terms["ZZII"])
	assert.Equal(t, -1.0, terms["ZIIZ"])
	assert.Equal(t, -1.0, terms["IIXI"])

	opt, ok := s.Registry.Get(semantic.Optimizer)
	require.True(t, ok)
	assert.Equal(t, true, opt.Metadata["legacy"])
	assert.True(t, opt.Executed)

	// Mean-field optimum of the periodic 4-site chain at J=h=1 is -5.
	v, ok = s.Namespace.Get("vqe_result")
	require.True(t, ok)
	result := v.(map[string]any)
	assert.InDelta(t, -5.0, result["energy"].(float64), 0.01)
	assert.Greater(t, result["iterations"].(int), 1)

	final, ok := s.Registry.Get(semantic.CompleteSolution)
	require.True(t, ok)
	assert.Equal(t, []string{"spec", "ansatz", "estimator", "hamiltonian", "optimizer", "vqe_execution"}, final.Metadata["order"])

	resp, err := yaegi.New().Run(ctx, code.Request{Source: final.Code})
	require.NoError(t, err)
	assert.Contains(t, resp.Stdout, "VQE energy: ")
}

func TestPipeline_SharedAngleSPSA(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewSessionBuilder(nil).Build()
	require.NoError(t, Register(s.Catalog, s.Graph, func(o *Options) { o.Assembler = false }))
	e := engine.New(s.Registry, s.Namespace, s.Catalog, yaegi.New(), s.Adapter, func(o *engine.Options) {
		o.BlockTimeout = time.Minute
	})

	ordered := []struct{ tool, command string }{
		{SpecToolName, `execution := tool.Execute(map[string]any{"n_qubits": 6, "h": 0.5})`},
		{HamiltonianToolName, `execution := tool.Execute(map[string]any{"spec_fragment": spec_fragment})`},
		{AnsatzToolName, `execution := tool.Execute(map[string]any{"ansatz_type": "hamiltonian_informed"})`},
		{OptimizerToolName, `execution := tool.Execute(map[string]any{"method": "spsa", "max_iter": 300, "learning_rate": 0.05})`},
		{EstimatorToolName, `execution := tool.Execute(map[string]any{"kind": "sampled", "shots": 100000, "seed": 3})`},
		{VQEToolName, `execution := tool.Execute(map[string]any{"initial_angle": 0.3})`},
	}
	for _, st := range ordered {
		outcomes, err := e.ExecuteCommand(ctx, st.tool, st.command)
		require.NoError(t, err, st.tool)
		require.Equal(t, core.StatusOK, outcomes[0].Status, outcomes[0].Message)
	}

	v, ok := s.Namespace.Get("vqe_result")
	require.True(t, ok)
	result := v.(map[string]any)
	assert.Len(t, result["parameters"].([]float64), 1)
	assert.Equal(t, "spsa", result["method"])
	// Open chain, 5 bonds, h=0.5: the shared-angle optimum is -5.45.
	assert.InDelta(t, -5.45, result["energy"].(float64), 0.1)
}
