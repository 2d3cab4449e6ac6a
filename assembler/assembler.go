// Package assembler stitches fragments into one self-contained Go program.
//
// In semantic mode fragments are ordered topologically by the dependency
// graph, their imports are merged and filtered, and each body becomes a
// labeled section of the generated main function. Legacy mode concatenates
// raw source blocks in input order.
package assembler

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/fragmesh/code"
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/semantic"
)

// Mode tells how an Assembly was produced.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeLegacy   Mode = "legacy"
)

// DefaultGenerator is recorded in generated headers.
const DefaultGenerator = "Code_Assembler_Tool"

// ErrNothingToAssemble is returned for empty input.
var ErrNothingToAssemble = errors.New("assembler: no fragments to assemble")

// Options configures an Assembler.
type Options struct {
	// Name is the solution name used in the header and banner.
	Name string
	// Description is an optional one-line summary.
	Description string
	// Generator names the producing tool.
	Generator string
	// ThirdParty lists import path prefixes that are third-party even when
	// their first element has no dot.
	ThirdParty []string
	// Clock supplies the creation timestamp.
	Clock func() time.Time
	Logger logging.Logger
}

// Assembly is the assembled program plus metadata.
type Assembly struct {
	Source        string        `json:"source"`
	Order         []core.Type   `json:"order,omitempty"`
	FragmentCount int           `json:"fragment_count"`
	Anomaly       bool          `json:"anomaly"`
	Mode          Mode          `json:"mode"`
	Imports       []code.Import `json:"imports,omitempty"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// Assembler builds programs from fragments.
type Assembler struct {
	graph *semantic.Graph
	opts  Options
}

// New creates an assembler. graph may be nil, in which case only the
// fragments' declared dependencies order the output.
func New(graph *semantic.Graph, optFns ...func(o *Options)) *Assembler {
	opts := Options{
		Name:      "fragmesh_solution",
		Generator: DefaultGenerator,
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
	return &Assembler{graph: graph, opts: opts}
}

// Order sorts fragments so every fragment follows the fragments it depends
// on. A later fragment of the same type replaces an earlier one. anomaly
// is set when the dependencies could not be honored.
func (a *Assembler) Order(fragments []*core.Fragment) (ordered []*core.Fragment, anomaly bool) {
	byType := make(map[core.Type]*core.Fragment, len(fragments))
	var types []core.Type
	for _, f := range fragments {
		if f == nil {
			continue
		}
		if _, ok := byType[f.SemanticType]; !ok {
			types = append(types, f.SemanticType)
		}
		byType[f.SemanticType] = f
	}

	order, anomaly := semantic.TopoSort(types, func(t core.Type) []core.Type {
		if a.graph != nil && a.graph.Has(t) {
			return a.graph.DependenciesOf(t)
		}
		if f, ok := byType[t]; ok {
			return f.DeclaredDependencies
		}
		return nil
	})
	ordered = make([]*core.Fragment, len(order))
	for i, t := range order {
		ordered[i] = byType[t]
	}
	return ordered, anomaly
}

type section struct {
	header []string
	body   string
	keep   []string
}

// Assemble builds a program from fragments. Fragments whose code already is
// a complete program are skipped.
func (a *Assembler) Assemble(fragments []*core.Fragment) (*Assembly, error) {
	ordered, anomaly := a.Order(fragments)
	if anomaly {
		a.opts.Logger.Warn("assembler.order.anomaly", "types", typeList(ordered))
	}

	var (
		imports  []code.Import
		sections []section
		order    []core.Type
		used     []*core.Fragment
	)
	for _, f := range ordered {
		if code.HasPackageClause(f.Code) {
			a.opts.Logger.Debug("assembler.fragment.skipped", "semantic_type", string(f.SemanticType), "reason", "complete program")
			continue
		}
		imps, body := code.SplitImports(f.Code)
		imports = append(imports, imps...)
		sections = append(sections, section{
			header: []string{
				fmt.Sprintf("===== %s SECTION =====", strings.ToUpper(string(f.SemanticType))),
				"Generated by: " + f.ToolSource,
				"Provides: " + strings.Join(f.Provides, ", "),
			},
			body: strings.TrimSpace(body),
			keep: declared(body),
		})
		order = append(order, f.SemanticType)
		used = append(used, f)
	}
	if len(sections) == 0 {
		return nil, ErrNothingToAssemble
	}

	now := a.opts.Clock()
	imports = append(imports, code.Import{Path: "fmt"})
	std, third := a.partition(code.UsedImports(code.DedupeImports(imports), joinBodies(sections)+"\nfmt."))

	var b strings.Builder
	a.writeHeader(&b, now, used)
	writeImports(&b, std, third)
	a.writeMain(&b, sections)

	a.opts.Logger.Info("assembler.assembled",
		"mode", string(ModeSemantic), "fragments", len(sections), "anomaly", anomaly)

	return &Assembly{
		Source:        b.String(),
		Order:         order,
		FragmentCount: len(sections),
		Anomaly:       anomaly,
		Mode:          ModeSemantic,
		Imports:       append(std, third...),
		GeneratedAt:   now,
	}, nil
}

// AssembleLegacy concatenates raw source blocks in input order. Imports are
// hoisted and deduplicated but keep their encounter order.
func (a *Assembler) AssembleLegacy(blocks []string) (*Assembly, error) {
	var (
		imports  []code.Import
		sections []section
	)
	for i, blk := range blocks {
		if strings.TrimSpace(blk) == "" {
			continue
		}
		imps, body := code.SplitImports(blk)
		imports = append(imports, imps...)
		sections = append(sections, section{
			header: []string{fmt.Sprintf("----- block %d -----", i+1)},
			body:   strings.TrimSpace(body),
			keep:   declared(body),
		})
	}
	if len(sections) == 0 {
		return nil, ErrNothingToAssemble
	}

	now := a.opts.Clock()
	imports = code.DedupeImports(append([]code.Import{{Path: "fmt"}}, imports...))

	var b strings.Builder
	fmt.Fprintf(&b, "// Command %s is generated by %s.\n", a.opts.Name, a.opts.Generator)
	if a.opts.Description != "" {
		fmt.Fprintf(&b, "// %s\n", a.opts.Description)
	}
	fmt.Fprintf(&b, "//\n// Created: %s\npackage main\n\n", now.Format(time.DateTime))
	writeImports(&b, imports, nil)
	a.writeMain(&b, sections)

	return &Assembly{
		Source:        b.String(),
		FragmentCount: len(sections),
		Mode:          ModeLegacy,
		Imports:       imports,
		GeneratedAt:   now,
	}, nil
}

func (a *Assembler) partition(imports []code.Import) (std, third []code.Import) {
	for _, imp := range imports {
		if code.IsStandard(imp.Path, a.opts.ThirdParty...) {
			std = append(std, imp)
		} else {
			third = append(third, imp)
		}
	}
	byPath := func(x, y code.Import) int { return strings.Compare(x.Path, y.Path) }
	slices.SortStableFunc(std, byPath)
	slices.SortStableFunc(third, byPath)
	return std, third
}

func (a *Assembler) writeHeader(b *strings.Builder, now time.Time, fragments []*core.Fragment) {
	fmt.Fprintf(b, "// Command %s is generated by %s.\n", a.opts.Name, a.opts.Generator)
	if a.opts.Description != "" {
		fmt.Fprintf(b, "// %s\n", a.opts.Description)
	}
	fmt.Fprintf(b, "//\n// Created: %s\n//\n// Semantic components:\n", now.Format(time.DateTime))
	for _, f := range fragments {
		fmt.Fprintf(b, "//   - %s: %s\n", f.SemanticType, f.ToolSource)
	}
	b.WriteString("package main\n\n")
}

func writeImports(b *strings.Builder, std, third []code.Import) {
	b.WriteString("import (\n")
	for _, imp := range std {
		fmt.Fprintf(b, "\t%s\n", imp.Spec())
	}
	if len(std) > 0 && len(third) > 0 {
		b.WriteString("\n")
	}
	for _, imp := range third {
		fmt.Fprintf(b, "\t%s\n", imp.Spec())
	}
	b.WriteString(")\n\n")
}

func (a *Assembler) writeMain(b *strings.Builder, sections []section) {
	b.WriteString("func main() {\n")
	fmt.Fprintf(b, "\tfmt.Println(%q)\n\n", "=== "+a.opts.Name+" ===")
	for i, s := range sections {
		for _, h := range s.header {
			fmt.Fprintf(b, "\t// %s\n", h)
		}
		b.WriteString("\n")
		if s.body != "" {
			b.WriteString(indent(s.body, "\t"))
			b.WriteString("\n")
		}
		for _, name := range s.keep {
			fmt.Fprintf(b, "\t_ = %s\n", name)
		}
		if i < len(sections)-1 {
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(b, "\n\tfmt.Println(%q)\n}\n", "solution completed")
}

// declared lists the top-level names of body in sorted order so unused
// variables do not break compilation.
func declared(body string) []string {
	names, err := code.DeclaredNames(body)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func indent(src, prefix string) string {
	lines := strings.Split(src, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + l
		} else {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

func joinBodies(sections []section) string {
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = s.body
	}
	return strings.Join(parts, "\n")
}

func typeList(fs []*core.Fragment) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f.SemanticType)
	}
	return strings.Join(parts, ", ")
}
