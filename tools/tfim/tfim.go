// Package tfim provides a transverse-field Ising toy pipeline of fragment
// tools: a model spec, its Pauli Hamiltonian, a product-state ansatz, an
// optimizer and estimator configuration, and a VQE loop over them.
//
// Every tool emits Go fragments whose values are plain maps, slices and
// numbers so they survive capture and can be assembled into one program.
//
//	spec ─┬─► hamiltonian ─┐
//	      ├─► ansatz ──────┤
//	      ├─► optimizer ───┼─► vqe_execution ─► complete_solution
//	      └─► estimator ───┘
package tfim

import (
	"fmt"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/internal/util"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/semantic"
	"github.com/hupe1980/fragmesh/tool"
)

// Tool names.
const (
	SpecToolName        = "TFIM_Spec_Tool"
	HamiltonianToolName = "TFIM_Hamiltonian_Tool"
	AnsatzToolName      = "TFIM_Ansatz_Tool"
	OptimizerToolName   = "TFIM_Optimizer_Tool"
	EstimatorToolName   = "TFIM_Estimator_Tool"
	VQEToolName         = "VQE_Tool"
)

// Options configures the tools built by Register.
type Options struct {
	// Assembler also registers the Code_Assembler_Tool.
	Assembler bool
	// AssemblerOptions are passed to tool.AssemblerFactory.
	AssemblerOptions []func(o *tool.AssemblerToolOptions)
	Logger           logging.Logger
}

type constructor func(optFns ...func(o *tool.FunctionToolOptions)) *tool.FunctionTool

// Register adds the TFIM tools (and by default the assembler) to c. Every
// block gets a fresh tool instance carrying the factory logger.
func Register(c *tool.Catalog, graph *semantic.Graph, optFns ...func(o *Options)) error {
	opts := Options{Assembler: true, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	for _, newTool := range []constructor{
		NewSpecTool, NewHamiltonianTool, NewAnsatzTool, NewOptimizerTool, NewEstimatorTool, NewVQETool,
	} {
		if err := c.Register(newTool().Descriptor(), factory(newTool, opts.Logger)); err != nil {
			return err
		}
	}
	if opts.Assembler {
		if err := c.Register(tool.AssemblerFactory(graph, opts.AssemblerOptions...)); err != nil {
			return err
		}
	}
	return nil
}

func factory(newTool constructor, fallback logging.Logger) tool.Factory {
	return func(fo tool.FactoryOptions) (tool.Tool, error) {
		logger := fallback
		if fo.Logger != nil {
			logger = fo.Logger
		}
		return newTool(func(o *tool.FunctionToolOptions) { o.Logger = logger }), nil
	}
}

func renderSource(toolName, tmpl string, data map[string]any) (string, error) {
	src, err := util.RenderTemplate(tmpl, data)
	if err != nil {
		return "", tool.NewToolError(toolName, fmt.Sprintf("render fragment: %v", err), tool.CodeExecutionError)
	}
	return src, nil
}

// fragment renders tmpl and wraps it as a fragment produced by toolName.
func fragment(toolName, tmpl string, data map[string]any, typ core.Type, primary string, provides ...string) (*core.Fragment, error) {
	src, err := renderSource(toolName, tmpl, data)
	if err != nil {
		return nil, err
	}
	return core.NewFragment(src, typ, primary).WithProvides(provides...).WithToolSource(toolName), nil
}
