// Package planner talks to the oracle: it analyzes the query, picks the next
// tool, asks for the tool command and decides when the session may stop.
//
// Every oracle answer is parsed as structured JSON first and falls back to
// the labeled free-text format requested by the prompts.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/internal/util"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/model"
	"github.com/hupe1980/fragmesh/registry"
	"github.com/hupe1980/fragmesh/semantic"
	"github.com/hupe1980/fragmesh/session"
	"github.com/hupe1980/fragmesh/tool"
)

// ErrNoMatchedTool is returned when the chosen tool name matches no
// catalog entry.
var ErrNoMatchedTool = errors.New("planner: no matched tool given")

// State is the semantic snapshot shown to the oracle.
type State struct {
	Completed  []core.Type
	Completion map[core.Type]bool
	Ready      []core.Type
	Variables  []string
	Fragments  []*core.Fragment
}

// StateOf captures the planner state of a session.
func StateOf(reg *registry.Registry, ns *session.Namespace) State {
	return State{
		Completed:  reg.Types(),
		Completion: reg.CompletionStatus(),
		Ready:      reg.ReadyTypes(),
		Variables:  ns.Keys(),
		Fragments:  reg.Fragments(),
	}
}

// Options configures a Planner.
type Options struct {
	// Instructions is the system prompt of every call.
	Instructions string
	// MaxResultLength truncates each block result in the action history.
	MaxResultLength int
	// MaxModelCalls bounds the oracle calls of the planner. Zero is
	// unlimited; calls past the budget fail with core.ErrCallLimit.
	MaxModelCalls int
	Logger        logging.Logger
}

// Planner drives the oracle side of a solving session.
type Planner struct {
	model   model.Model
	catalog *tool.Catalog
	schema  *semantic.Schema
	graph   *semantic.Graph
	limiter *core.CallLimiter
	opts    Options
}

// New creates a planner over the enabled tools of catalog.
func New(m model.Model, catalog *tool.Catalog, schema *semantic.Schema, graph *semantic.Graph, optFns ...func(o *Options)) *Planner {
	opts := Options{
		Instructions:    Instructions,
		MaxResultLength: 2000,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Planner{
		model:   m,
		catalog: catalog,
		schema:  schema,
		graph:   graph,
		limiter: core.NewCallLimiter(opts.MaxModelCalls),
		opts:    opts,
	}
}

// ModelCalls returns the number of oracle calls made so far.
func (p *Planner) ModelCalls() int { return p.limiter.Count() }

// AnalyzeQuery asks the oracle for a query analysis.
func (p *Planner) AnalyzeQuery(ctx context.Context, query string) (string, error) {
	out, err := p.call(ctx, "analyze", queryAnalysisPrompt, p.baseData(query))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// NextStep asks the oracle for the next tool call. The tool name is
// normalized against the catalog; when nothing matches the parsed step is
// returned together with ErrNoMatchedTool.
func (p *Planner) NextStep(ctx context.Context, query, analysis string, steps []core.Step, state State, step, maxSteps int) (NextStep, error) {
	data := p.baseData(query)
	p.addState(data, state)
	data["Analysis"] = analysis
	data["Actions"] = FormatActions(steps, p.opts.MaxResultLength)
	data["Step"] = step
	data["MaxSteps"] = maxSteps
	data["Remaining"] = max(maxSteps-step, 0)

	out, err := p.call(ctx, "next_step", nextStepPrompt, data)
	if err != nil {
		return NextStep{}, err
	}
	ns, err := ParseNextStep(out)
	if err != nil {
		return NextStep{}, err
	}
	name, ok := p.NormalizeToolName(ns.ToolName)
	if !ok {
		return ns, fmt.Errorf("%w: %s", ErrNoMatchedTool, ns.ToolName)
	}
	ns.ToolName = name
	return ns, nil
}

// GenerateCommand asks the oracle for the command executing ns.
func (p *Planner) GenerateCommand(ctx context.Context, query string, ns NextStep, state State) (ToolCommand, error) {
	data := p.baseData(query)
	p.addState(data, state)
	data["Context"] = ns.Context
	data["SubGoal"] = ns.SubGoal
	data["ToolName"] = ns.ToolName
	if d, ok := p.catalog.Descriptor(ns.ToolName); ok {
		data["ToolMetadata"] = toJSON(d)
	}

	out, err := p.call(ctx, "command", commandPrompt, data)
	if err != nil {
		return ToolCommand{}, err
	}
	return ParseCommand(out), nil
}

// Verify asks the oracle whether the session may stop.
func (p *Planner) Verify(ctx context.Context, query, analysis string, steps []core.Step, state State) (Verification, error) {
	data := p.baseData(query)
	p.addState(data, state)
	data["Analysis"] = analysis
	data["Actions"] = FormatActions(steps, p.opts.MaxResultLength)
	required := p.graph.AllTypes()
	var missing []core.Type
	for _, t := range required {
		if !state.Completion[t] {
			missing = append(missing, t)
		}
	}
	data["Required"] = required
	data["Missing"] = missing
	data["Final"] = string(p.graph.Final())

	out, err := p.call(ctx, "verify", verificationPrompt, data)
	if err != nil {
		return Verification{}, err
	}
	return ParseVerification(out), nil
}

// FinalOutput asks the oracle for a narrative answer.
func (p *Planner) FinalOutput(ctx context.Context, query string, steps []core.Step, state State) (string, error) {
	data := p.baseData(query)
	data["Actions"] = FormatActions(steps, p.opts.MaxResultLength)
	components := make([]string, 0, len(state.Fragments))
	for _, f := range state.Fragments {
		components = append(components, fmt.Sprintf("%s: %s", f.SemanticType, f.ToolSource))
	}
	data["Components"] = components
	return p.call(ctx, "final_output", finalOutputPrompt, data)
}

// DirectOutput asks the oracle for the final code answer.
func (p *Planner) DirectOutput(ctx context.Context, query, analysis string, steps []core.Step, state State) (string, error) {
	data := p.baseData(query)
	data["Analysis"] = analysis
	data["Actions"] = FormatActions(steps, p.opts.MaxResultLength)
	data["FragmentCount"] = len(state.Fragments)
	data["HasFinal"] = state.Completion[p.graph.Final()]
	return p.call(ctx, "direct_output", directOutputPrompt, data)
}

// NormalizeToolName maps an oracle-chosen name onto a catalog name: an
// exact case-insensitive match first, otherwise the longest catalog name
// contained in name.
func (p *Planner) NormalizeToolName(name string) (string, bool) {
	name = strings.TrimSpace(strings.Trim(name, "`\"'"))
	lower := strings.ToLower(name)
	best := ""
	for _, n := range p.catalog.Names() {
		ln := strings.ToLower(n)
		if ln == lower {
			return n, true
		}
		if strings.Contains(lower, ln) && len(n) > len(best) {
			best = n
		}
	}
	return best, best != ""
}

func (p *Planner) call(ctx context.Context, stage, tmpl string, data map[string]any) (string, error) {
	prompt, err := util.RenderTemplate(tmpl, data)
	if err != nil {
		return "", fmt.Errorf("planner: render %s prompt: %w", stage, err)
	}
	if err := p.limiter.Acquire(); err != nil {
		p.opts.Logger.Warn("planner."+stage+".limited", "calls", p.limiter.Count())
		return "", fmt.Errorf("planner: %s: %w", stage, err)
	}
	start := time.Now()
	out, err := model.Prompt(ctx, p.model, p.opts.Instructions, prompt)
	dur := time.Since(start)
	if ml, ok := p.opts.Logger.(*logging.MeshLogger); ok {
		ml.LogLLMCall(p.model.Info().Name, utf8.RuneCountInString(out), dur, err == nil, err)
	}
	if err != nil {
		p.opts.Logger.Error("planner."+stage+".failed", "error", err)
		return "", fmt.Errorf("planner: %s: %w", stage, err)
	}
	p.opts.Logger.Debug("planner."+stage+".complete", "duration", dur, "chars", len(out))
	return out, nil
}

func (p *Planner) baseData(query string) map[string]any {
	return map[string]any{
		"Query":        query,
		"Tools":        p.catalog.Names(),
		"ToolMetadata": toJSON(p.catalog.Descriptors()),
		"Dependencies": p.dependencies(),
		"ToolTypes":    p.toolTypes(),
	}
}

func (p *Planner) addState(data map[string]any, s State) {
	data["Completed"] = s.Completed
	data["Completion"] = s.Completion
	data["Ready"] = s.Ready
	data["Variables"] = s.Variables
}

func (p *Planner) dependencies() string {
	var b strings.Builder
	for _, t := range p.graph.AllTypes() {
		deps := p.graph.DependenciesOf(t)
		names := make([]string, len(deps))
		for i, d := range deps {
			names[i] = string(d)
		}
		fmt.Fprintf(&b, "- %s: [%s]\n", t, strings.Join(names, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *Planner) toolTypes() string {
	var b strings.Builder
	for _, name := range p.catalog.Names() {
		d, _ := p.catalog.Descriptor(name)
		types := []core.Type{d.Capability.SemanticType}
		if d.Capability.SemanticType == "" {
			types = p.schema.Tools[name]
		}
		if len(types) == 0 {
			continue
		}
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		fmt.Fprintf(&b, "- %s -> %s\n", name, strings.Join(names, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatActions renders the step history for prompts. Each block result is
// cut to maxLen runes (0 keeps everything).
func FormatActions(steps []core.Step, maxLen int) string {
	if len(steps) == 0 {
		return "No previous steps."
	}
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "Action Step %d:\n  Tool: %s\n  Sub-Goal: %s\n  Command: %s\n", s.Index, s.Tool, s.SubGoal, s.Source)
		if s.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", s.Error)
		}
		for i, o := range s.Outcomes {
			fmt.Fprintf(&b, "  Result %d (%s): %s\n", i+1, o.Status, truncate(describe(o), maxLen))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func describe(o core.Outcome) string {
	if o.Fragment != nil {
		return o.Fragment.String()
	}
	return fmt.Sprintf("%v", o.Result())
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

