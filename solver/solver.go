// Package solver runs a fragment-generation session: the planner picks a
// tool and writes its command, the engine executes the command blocks, the
// tracker records the step, and the loop repeats until the planner stops it,
// the final artifact exists, or a step or time budget runs out.
//
//	analyze ─► next step ─► command ─► execute ─► record ─► verify ─┐
//	              ▲                                                  │
//	              └──────────────────── continue ────────────────────┘
package solver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/fragmesh/artifact"
	"github.com/hupe1980/fragmesh/assembler"
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/engine"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/memory"
	"github.com/hupe1980/fragmesh/planner"
	"github.com/hupe1980/fragmesh/semantic"
)

// Output kinds produced after the loop.
const (
	OutputFinal  = "final"
	OutputDirect = "direct"
)

// StopReason says why the loop ended.
type StopReason string

const (
	StopVerified   StopReason = "verified"
	StopComplete   StopReason = "complete"
	StopMaxSteps   StopReason = "max_steps"
	StopTimeBudget StopReason = "time_budget"
	StopCanceled   StopReason = "canceled"
	StopCallLimit  StopReason = "call_limit"
)

// Options configures a Solver.
type Options struct {
	// SessionID defaults to a random UUID.
	SessionID string
	// MaxSteps bounds the number of planner steps.
	MaxSteps int
	// TimeBudget bounds the wall-clock duration of the loop. A step that is
	// already running is not interrupted.
	TimeBudget time.Duration
	// OutputTypes selects the narrative outputs (OutputFinal, OutputDirect).
	OutputTypes []string
	// Store receives the exported session when set.
	Store  core.ArtifactStore
	Clock  func() time.Time
	Logger logging.Logger
}

// Status is the semantic snapshot of a session.
type Status struct {
	SessionID            string             `json:"session_id"`
	CompletedTypes       []core.Type        `json:"completed_types"`
	Completion           map[core.Type]bool `json:"completion_status"`
	NextPossibleTypes    []core.Type        `json:"next_possible_types"`
	Variables            []string           `json:"namespace_variables"`
	FragmentCount        int                `json:"fragment_count"`
	CompletionPercentage float64            `json:"completion_percentage"`
	FinalAvailable       bool               `json:"final_available"`
}

// Result is what a session produced.
type Result struct {
	SessionID    string         `json:"session_id"`
	Query        string         `json:"query"`
	Analysis     string         `json:"analysis"`
	Steps        []core.Step    `json:"steps"`
	StopReason   StopReason     `json:"stop_reason"`
	Status       Status         `json:"status"`
	Summary      memory.Summary `json:"summary"`
	Program      string         `json:"program,omitempty"`
	FinalOutput  string         `json:"final_output,omitempty"`
	DirectOutput string         `json:"direct_output,omitempty"`
	Artifacts    []string       `json:"artifacts,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// Solver drives one session.
type Solver struct {
	planner *planner.Planner
	engine  *engine.Engine
	graph   *semantic.Graph
	tracker *memory.Tracker
	opts    Options
	logger  logging.Logger
}

// New creates a solver over a planner and an engine bound to the session
// registry and namespace.
func New(p *planner.Planner, e *engine.Engine, optFns ...func(o *Options)) *Solver {
	opts := Options{
		MaxSteps:    10,
		TimeBudget:  5 * time.Minute,
		OutputTypes: []string{OutputFinal, OutputDirect},
		Clock:       time.Now,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	logger := opts.Logger
	if ml, ok := logger.(*logging.MeshLogger); ok {
		logger = ml.WithSession(opts.SessionID).WithComponent("solver")
	}
	graph := e.Registry().Graph()
	return &Solver{
		planner: p,
		engine:  e,
		graph:   graph,
		tracker: memory.NewTracker(graph, func(o *memory.Options) { o.Clock = opts.Clock }),
		opts:    opts,
		logger:  logger,
	}
}

// SessionID returns the session identifier.
func (s *Solver) SessionID() string { return s.opts.SessionID }

// Tracker returns the session's workflow tracker.
func (s *Solver) Tracker() *memory.Tracker { return s.tracker }

// Status returns the current semantic snapshot.
func (s *Solver) Status() Status {
	reg := s.engine.Registry()
	return Status{
		SessionID:            s.opts.SessionID,
		CompletedTypes:       reg.Types(),
		Completion:           reg.CompletionStatus(),
		NextPossibleTypes:    reg.ReadyTypes(),
		Variables:            s.engine.Namespace().Keys(),
		FragmentCount:        reg.Len(),
		CompletionPercentage: percent(reg.CompletionStatus()),
		FinalAvailable:       reg.Has(s.graph.Final()),
	}
}

// Solve runs the session loop for query. Oracle failures abort the session;
// per-step failures (unknown tool, missing command, tool resolution) are
// recorded and the loop continues.
func (s *Solver) Solve(ctx context.Context, query string) (*Result, error) {
	start := s.opts.Clock()
	s.tracker.SetQuery(query)
	s.logger.Info("solver.session.start", "query", query, "max_steps", s.opts.MaxSteps, "time_budget", s.opts.TimeBudget)

	res := &Result{SessionID: s.opts.SessionID, Query: query}
	analysis, err := s.planner.AnalyzeQuery(ctx, query)
	if err != nil {
		return s.fail(res, start, err)
	}
	res.Analysis = analysis

	res.StopReason, err = s.loop(ctx, query, analysis, start)
	if err != nil {
		return s.fail(res, start, err)
	}

	state := planner.StateOf(s.engine.Registry(), s.engine.Namespace())
	steps := s.tracker.Steps()
	outputs := s.opts.OutputTypes
	if res.StopReason == StopCanceled {
		outputs = nil
	}
	if slices.Contains(outputs, OutputFinal) {
		if res.FinalOutput, err = s.planner.FinalOutput(ctx, query, steps, state); err != nil {
			s.logger.Warn("solver.output.failed", "output", OutputFinal, "error", err)
		}
	}
	if slices.Contains(outputs, OutputDirect) {
		if res.DirectOutput, err = s.planner.DirectOutput(ctx, query, analysis, steps, state); err != nil {
			s.logger.Warn("solver.output.failed", "output", OutputDirect, "error", err)
		}
	}

	res.Program = s.program()
	res.Steps = steps
	res.Status = s.Status()
	res.Summary = s.tracker.Summary()

	if s.opts.Store != nil {
		ids, err := artifact.NewExporter(s.opts.Store, func(o *artifact.ExporterOptions) { o.Logger = s.logger }).
			Export(context.WithoutCancel(ctx), artifact.Export{
				SessionID: s.opts.SessionID,
				Fragments: s.engine.Registry().Fragments(),
				Program:   res.Program,
				Status:    res.Status,
			})
		if err != nil {
			return s.fail(res, start, err)
		}
		res.Artifacts = ids
	}

	res.Duration = s.opts.Clock().Sub(start)
	s.logSession(res, nil)
	return res, nil
}

func (s *Solver) loop(ctx context.Context, query, analysis string, start time.Time) (StopReason, error) {
	reg := s.engine.Registry()
	for step := 1; step <= s.opts.MaxSteps; step++ {
		if ctx.Err() != nil {
			return StopCanceled, nil
		}
		if s.opts.TimeBudget > 0 && s.opts.Clock().Sub(start) >= s.opts.TimeBudget {
			s.logger.Warn("solver.time_budget.exceeded", "step", step, "budget", s.opts.TimeBudget)
			return StopTimeBudget, nil
		}

		state := planner.StateOf(reg, s.engine.Namespace())
		next, err := s.planner.NextStep(ctx, query, analysis, s.tracker.Steps(), state, step, s.opts.MaxSteps)
		if err != nil {
			if !errors.Is(err, planner.ErrNoMatchedTool) && !errors.Is(err, planner.ErrNoNextStep) {
				return s.oracleStop(err)
			}
			s.logger.Warn("solver.step.no_tool", "step", step, "tool_name", next.ToolName, "error", err)
			s.tracker.RecordFailure(next.ToolName, next.SubGoal, "", err)
			continue
		}
		s.logger.Info("solver.step.start", "step", step, "tool_name", next.ToolName, "sub_goal", next.SubGoal)

		cmd, err := s.planner.GenerateCommand(ctx, query, next, state)
		if err != nil {
			return s.oracleStop(err)
		}
		if cmd.Command == planner.NoCommand {
			s.logger.Warn("solver.step.no_command", "step", step, "tool_name", next.ToolName)
			s.tracker.RecordFailure(next.ToolName, next.SubGoal, "", errors.New(planner.NoCommand))
			continue
		}

		outcomes, err := s.engine.ExecuteCommand(ctx, next.ToolName, cmd.Command)
		if err != nil {
			s.logger.Warn("solver.step.failed", "step", step, "tool_name", next.ToolName, "error", err)
			s.tracker.RecordFailure(next.ToolName, next.SubGoal, cmd.Command, err)
			continue
		}
		recorded := s.tracker.RecordStep(next.ToolName, next.SubGoal, cmd.Command, outcomes)
		s.logger.Info("solver.step.complete",
			"step", step,
			"tool_name", next.ToolName,
			"blocks", len(outcomes),
			"fragments", len(recorded.Fragments()),
			"completion", s.tracker.CompletionPercentage(),
		)
		if err := s.tracker.Verify(reg.CompletionStatus()); err != nil {
			s.logger.Debug("solver.tracker.diverged", "error", err)
		}
		if ctx.Err() != nil {
			return StopCanceled, nil
		}

		if reg.Has(s.graph.Final()) {
			return StopComplete, nil
		}

		v, err := s.planner.Verify(ctx, query, analysis, s.tracker.Steps(), planner.StateOf(reg, s.engine.Namespace()))
		if err != nil {
			return s.oracleStop(err)
		}
		s.logger.Debug("solver.verify", "step", step, "conclusion", v.Conclusion())
		if v.StopSignal {
			return StopVerified, nil
		}
	}
	return StopMaxSteps, nil
}

// oracleStop ends the loop on an exhausted call budget and fails it on any
// other oracle error.
func (s *Solver) oracleStop(err error) (StopReason, error) {
	if errors.Is(err, core.ErrCallLimit) {
		s.logger.Warn("solver.call_limit.exceeded", "calls", s.planner.ModelCalls())
		return StopCallLimit, nil
	}
	return "", err
}

// program returns the final fragment's code, or an assembly of whatever the
// registry holds.
func (s *Solver) program() string {
	reg := s.engine.Registry()
	if f, ok := reg.Get(s.graph.Final()); ok {
		return f.Code
	}
	asm, err := assembler.New(s.graph, func(o *assembler.Options) { o.Logger = s.logger }).Assemble(reg.Fragments())
	if err != nil {
		if !errors.Is(err, assembler.ErrNothingToAssemble) {
			s.logger.Warn("solver.assemble.failed", "error", err)
		}
		return ""
	}
	return asm.Source
}

func (s *Solver) fail(res *Result, start time.Time, err error) (*Result, error) {
	res.Steps = s.tracker.Steps()
	res.Status = s.Status()
	res.Summary = s.tracker.Summary()
	res.Duration = s.opts.Clock().Sub(start)
	s.logSession(res, err)
	return res, fmt.Errorf("solver: %w", err)
}

func (s *Solver) logSession(res *Result, err error) {
	if ml, ok := s.logger.(*logging.MeshLogger); ok {
		ml.LogSession(len(res.Steps), res.Summary.CompletionPercentage, res.Duration, err == nil, err)
		return
	}
	if err != nil {
		s.logger.Error("solver.session.failed", "steps", len(res.Steps), "error", err)
		return
	}
	s.logger.Info("solver.session.complete",
		"steps", len(res.Steps),
		"stop_reason", res.StopReason,
		"completion", res.Summary.CompletionPercentage,
		"duration", res.Duration,
	)
}

func percent(status map[core.Type]bool) float64 {
	if len(status) == 0 {
		return 0
	}
	done := 0
	for _, ok := range status {
		if ok {
			done++
		}
	}
	return float64(done) / float64(len(status)) * 100
}
