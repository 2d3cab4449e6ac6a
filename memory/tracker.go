package memory

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/semantic"
)

// Options configures a Tracker.
type Options struct {
	// Clock returns the timestamp recorded on each step. Defaults to time.Now.
	Clock func() time.Time
}

// Summary is a structured snapshot of the tracker state.
type Summary struct {
	TotalFragments       int                `json:"total_fragments"`
	CompletedTypes       []core.Type        `json:"completed_types"`
	Progress             map[core.Type]bool `json:"workflow_progress"`
	ExecutionOrder       []core.Type        `json:"execution_order"`
	CompletionPercentage float64            `json:"completion_percentage"`
	NextRequired         []core.Type        `json:"next_required"`
	IsComplete           bool               `json:"is_complete"`
}

// Tracker records workflow steps and per-type completion for one session.
type Tracker struct {
	mu        sync.RWMutex
	graph     *semantic.Graph
	clock     func() time.Time
	query     string
	steps     []core.Step
	progress  map[core.Type]bool
	order     []core.Type
	fragments map[core.Type]*core.Fragment
}

// NewTracker creates a tracker with every type of graph marked incomplete.
func NewTracker(graph *semantic.Graph, optFns ...func(o *Options)) *Tracker {
	opts := Options{Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	t := &Tracker{
		graph:     graph,
		clock:     opts.Clock,
		progress:  make(map[core.Type]bool, graph.Len()),
		fragments: make(map[core.Type]*core.Fragment),
	}
	for _, typ := range graph.AllTypes() {
		t.progress[typ] = false
	}
	return t
}

// SetQuery records the user query the session is solving.
func (t *Tracker) SetQuery(q string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.query = q
}

// Query returns the recorded query.
func (t *Tracker) Query() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.query
}

// RecordStep appends a step. Every fragment among the outcomes marks its
// type complete; a type enters the execution order only on its first
// completion. Fragments of types the graph does not declare stay in the
// step but never count toward progress.
func (t *Tracker) RecordStep(tool, subGoal, source string, outcomes []core.Outcome) core.Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	step := t.appendLocked(core.Step{
		Tool:     tool,
		SubGoal:  subGoal,
		Source:   source,
		Outcomes: slices.Clone(outcomes),
	})
	for _, f := range step.Fragments() {
		if !t.graph.Has(f.SemanticType) {
			continue
		}
		t.fragments[f.SemanticType] = f
		t.progress[f.SemanticType] = true
		if !slices.Contains(t.order, f.SemanticType) {
			t.order = append(t.order, f.SemanticType)
		}
	}
	return step
}

// RecordFailure appends a step that failed before any block ran (for
// example the tool could not be constructed).
func (t *Tracker) RecordFailure(tool, subGoal, source string, err error) core.Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(core.Step{
		Tool:    tool,
		SubGoal: subGoal,
		Source:  source,
		Error:   err.Error(),
	})
}

func (t *Tracker) appendLocked(s core.Step) core.Step {
	s.ID = core.NewID()
	s.Index = len(t.steps) + 1
	s.Timestamp = t.clock()
	t.steps = append(t.steps, s)
	return s
}

// Steps returns a copy of the audit log.
func (t *Tracker) Steps() []core.Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.steps)
}

// Progress returns a copy of the completion map.
func (t *Tracker) Progress() map[core.Type]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[core.Type]bool, len(t.progress))
	for k, v := range t.progress {
		out[k] = v
	}
	return out
}

// CompletionPercentage returns completed/total*100, or 0 without types.
func (t *Tracker) CompletionPercentage() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.percentLocked()
}

func (t *Tracker) percentLocked() float64 {
	if len(t.progress) == 0 {
		return 0
	}
	done := 0
	for _, ok := range t.progress {
		if ok {
			done++
		}
	}
	return float64(done) / float64(len(t.progress)) * 100
}

// NextRequiredTypes returns the incomplete types whose dependencies are all
// complete, sorted.
func (t *Tracker) NextRequiredTypes() []core.Type {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextLocked()
}

func (t *Tracker) nextLocked() []core.Type {
	var next []core.Type
	for _, typ := range t.graph.AllTypes() {
		if t.progress[typ] {
			continue
		}
		if len(t.missingLocked(typ)) == 0 {
			next = append(next, typ)
		}
	}
	return next
}

// MissingDependencies returns the dependencies of typ not yet complete.
func (t *Tracker) MissingDependencies(typ core.Type) []core.Type {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.missingLocked(typ)
}

func (t *Tracker) missingLocked(typ core.Type) []core.Type {
	var missing []core.Type
	for _, d := range t.graph.DependenciesOf(typ) {
		if !t.progress[d] {
			missing = append(missing, d)
		}
	}
	return missing
}

// IsComplete reports whether every required type has a completed fragment.
// Without arguments it checks the graph's final type.
func (t *Tracker) IsComplete(required ...core.Type) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completeLocked(required)
}

func (t *Tracker) completeLocked(required []core.Type) bool {
	if len(required) == 0 {
		required = []core.Type{t.graph.Final()}
	}
	for _, typ := range required {
		if _, ok := t.fragments[typ]; !ok {
			return false
		}
	}
	return true
}

// ExecutionOrder returns the types in order of first completion.
func (t *Tracker) ExecutionOrder() []core.Type {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.order)
}

// Fragments returns the latest fragment per type in execution order.
func (t *Tracker) Fragments() []*core.Fragment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*core.Fragment, 0, len(t.order))
	for _, typ := range t.order {
		out = append(out, t.fragments[typ])
	}
	return out
}

// Verify compares the tracker's completion map with a registry presence
// map and returns an error naming every type on which they disagree.
func (t *Tracker) Verify(registryStatus map[core.Type]bool) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var diverged []string
	for _, typ := range t.graph.AllTypes() {
		if t.progress[typ] != registryStatus[typ] {
			diverged = append(diverged, string(typ))
		}
	}
	if len(diverged) > 0 {
		return fmt.Errorf("memory: tracker and registry disagree on %s", strings.Join(diverged, ", "))
	}
	return nil
}

// Summary returns a structured snapshot.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summaryLocked()
}

func (t *Tracker) summaryLocked() Summary {
	completed := make([]core.Type, 0, len(t.fragments))
	for typ := range t.fragments {
		completed = append(completed, typ)
	}
	slices.Sort(completed)
	progress := make(map[core.Type]bool, len(t.progress))
	for k, v := range t.progress {
		progress[k] = v
	}
	return Summary{
		TotalFragments:       len(t.fragments),
		CompletedTypes:       completed,
		Progress:             progress,
		ExecutionOrder:       slices.Clone(t.order),
		CompletionPercentage: t.percentLocked(),
		NextRequired:         t.nextLocked(),
		IsComplete:           t.completeLocked(nil),
	}
}

// Report renders a human readable progress report.
func (t *Tracker) Report() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.summaryLocked()

	var b strings.Builder
	b.WriteString("=== Semantic Workflow Progress ===\n")
	fmt.Fprintf(&b, "Completion: %.1f%%\n", s.CompletionPercentage)
	fmt.Fprintf(&b, "Fragments Generated: %d\n\n", s.TotalFragments)
	b.WriteString("Progress by Type:\n")
	for _, typ := range t.graph.AllTypes() {
		mark := "[ ]"
		if s.Progress[typ] {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "  %s %s", mark, typ)
		if deps := t.graph.DependenciesOf(typ); len(deps) > 0 {
			fmt.Fprintf(&b, " (depends on: %s)", joinTypes(deps))
		}
		b.WriteByte('\n')
	}
	if len(s.NextRequired) > 0 {
		fmt.Fprintf(&b, "\nNext Required: %s\n", joinTypes(s.NextRequired))
	}
	if s.IsComplete {
		b.WriteString("\nWorkflow Complete! Full solution available.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func joinTypes(ts []core.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
