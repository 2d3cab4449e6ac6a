package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/fragmesh/assembler"
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/semantic"
)

// AssemblerToolName is the catalog name of the assembler tool.
const AssemblerToolName = assembler.DefaultGenerator

// AssemblerToolOptions configures an AssemblerTool.
type AssemblerToolOptions struct {
	// FinalType is the type of the produced fragment. Defaults to the
	// graph's final type.
	FinalType core.Type
	// Variable is the primary variable of the produced fragment.
	Variable string
	// OutputDir receives <solution_name>.go when saving is enabled.
	OutputDir  string
	ThirdParty []string
	Clock      func() time.Time
	Logger     logging.Logger
}

// AssemblerTool produces the final-artifact fragment by assembling the
// fragments passed in "fragments" (semantic mode) or the raw blocks in
// "code_fragments" (legacy mode).
type AssemblerTool struct {
	graph *semantic.Graph
	opts  AssemblerToolOptions
	desc  Descriptor
}

var _ Tool = (*AssemblerTool)(nil)

// NewAssemblerTool creates the assembler tool over graph.
func NewAssemblerTool(graph *semantic.Graph, optFns ...func(o *AssemblerToolOptions)) *AssemblerTool {
	opts := AssemblerToolOptions{
		FinalType: graph.Final(),
		Variable:  "complete_code",
		Clock:     time.Now,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &AssemblerTool{
		graph: graph,
		opts:  opts,
		desc: Descriptor{
			Name:        AssemblerToolName,
			Description: "Assemble code fragments into one complete Go program.",
			Version:     "2.0.0",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fragments":      map[string]any{"type": "array", "description": "Fragments to assemble"},
					"code_fragments": map[string]any{"type": "array", "description": "Raw source blocks (legacy mode)"},
					"solution_name":  map[string]any{"type": "string"},
					"description":    map[string]any{"type": "string"},
					"save_file":      map[string]any{"type": "boolean"},
				},
			},
			Output: "*core.Fragment holding the complete program",
			Demos: []string{
				`execution := tool.Execute(map[string]any{"fragments": fragments})`,
				`execution := tool.Execute(map[string]any{"fragments": fragments, "solution_name": "tfim_vqe"})`,
			},
			Capability: Capability{
				SemanticType: opts.FinalType,
				Dependencies: graph.DependenciesOf(opts.FinalType),
				Provides:     []string{opts.Variable},
			},
		},
	}
}

// AssemblerFactory returns a catalog factory that builds an AssemblerTool
// writing into the session output directory.
func AssemblerFactory(graph *semantic.Graph, optFns ...func(o *AssemblerToolOptions)) (Descriptor, Factory) {
	desc := NewAssemblerTool(graph, optFns...).Descriptor()
	return desc, func(fo FactoryOptions) (Tool, error) {
		return NewAssemblerTool(graph, append(optFns, func(o *AssemblerToolOptions) {
			if fo.OutputDir != "" {
				o.OutputDir = fo.OutputDir
			}
			if fo.Logger != nil {
				o.Logger = fo.Logger
			}
		})...), nil
	}
}

// Descriptor returns the tool metadata.
func (t *AssemblerTool) Descriptor() Descriptor { return t.desc }

// Execute assembles the input and returns the final fragment.
func (t *AssemblerTool) Execute(_ context.Context, args map[string]any) (any, error) {
	fragments, err := fragmentsArg(args["fragments"])
	if err != nil {
		return nil, NewToolError(t.desc.Name, err.Error(), CodeValidationError)
	}
	blocks, err := stringsArg(args["code_fragments"])
	if err != nil {
		return nil, NewToolError(t.desc.Name, err.Error(), CodeValidationError)
	}
	if len(fragments) == 0 && len(blocks) == 0 {
		return nil, NewToolError(t.desc.Name, "either fragments or code_fragments must be provided", CodeValidationError)
	}

	now := t.opts.Clock()
	name, _ := args["solution_name"].(string)
	if name == "" {
		name = "fragmesh_solution_" + now.Format("20060102_150405")
	}
	description, _ := args["description"].(string)

	asm := assembler.New(t.graph, func(o *assembler.Options) {
		o.Name = name
		o.Description = description
		o.ThirdParty = t.opts.ThirdParty
		o.Clock = func() time.Time { return now }
		o.Logger = t.opts.Logger
	})

	var out *assembler.Assembly
	if len(fragments) > 0 {
		out, err = asm.Assemble(fragments)
	} else {
		out, err = asm.AssembleLegacy(blocks)
	}
	if err != nil {
		return nil, &ToolError{Tool: t.desc.Name, Message: err.Error(), Code: CodeExecutionError, Details: err}
	}

	save := t.opts.OutputDir != ""
	if v, ok := args["save_file"].(bool); ok {
		save = save && v
	}
	var filePath string
	if save {
		filePath = filepath.Join(t.opts.OutputDir, name+".go")
		if err := os.WriteFile(filePath, []byte(out.Source), 0o644); err != nil {
			t.opts.Logger.Warn("tool.assembler.save_failed", "path", filePath, "error", err)
			filePath = ""
		}
	}

	order := make([]string, len(out.Order))
	for i, typ := range out.Order {
		order[i] = string(typ)
	}
	return core.NewFragment(out.Source, t.opts.FinalType, t.opts.Variable).
		WithDependencies(t.desc.Capability.Dependencies...).
		WithToolSource(t.desc.Name).
		WithMetadata("solution_name", name).
		WithMetadata("assembly_mode", string(out.Mode)).
		WithMetadata("fragments_count", out.FragmentCount).
		WithMetadata("order", order).
		WithMetadata("anomaly", out.Anomaly).
		WithMetadata("file_path", filePath).
		WithMetadata("generated_at", out.GeneratedAt.Format(time.RFC3339)), nil
}

func fragmentsArg(v any) ([]*core.Fragment, error) {
	switch fs := v.(type) {
	case nil:
		return nil, nil
	case []*core.Fragment:
		return fs, nil
	case *core.Fragment:
		return []*core.Fragment{fs}, nil
	case []any:
		out := make([]*core.Fragment, 0, len(fs))
		for i, e := range fs {
			f, ok := e.(*core.Fragment)
			if !ok {
				return nil, fmt.Errorf("fragments[%d] is %T, not a fragment", i, e)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("fragments must be a list of fragments, got %T", v)
	}
}

func stringsArg(v any) ([]string, error) {
	switch ss := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return ss, nil
	case []any:
		out := make([]string, 0, len(ss))
		for i, e := range ss {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("code_fragments[%d] is %T, not a string", i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("code_fragments must be a list of strings, got %T", v)
	}
}
