package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/evaluation"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/solver"
)

// Solver runs one query in a fresh session. *fragmesh.Mesh implements it.
type Solver interface {
	Solve(ctx context.Context, query string, optFns ...func(o *solver.Options)) (*solver.Result, error)
}

// Job is one query to solve.
type Job struct {
	// ID becomes the session id; a random one is used when empty.
	ID     string                  `json:"id,omitempty" yaml:"id,omitempty"`
	Query  string                  `json:"query" yaml:"query"`
	Expect *evaluation.Expectation `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// Outcome is the result of one job.
type Outcome struct {
	Job    Job                `json:"job"`
	Result *solver.Result     `json:"result,omitempty"`
	Report *evaluation.Report `json:"report,omitempty"`
	Err    error              `json:"-"`
}

// Passed reports whether the job solved without error and met its
// expectation, if it had one.
func (o Outcome) Passed() bool {
	return o.Err == nil && (o.Report == nil || o.Report.Passed)
}

// Options configures a Runner.
type Options struct {
	// MaxConcurrentRuns bounds the sessions running at once.
	MaxConcurrentRuns int
	// Evaluator checks jobs that carry an expectation. Expectations are
	// ignored without one.
	Evaluator *evaluation.Evaluator
	Logger    logging.Logger
}

// Runner solves jobs on a Solver with bounded concurrency and lets callers
// cancel individual runs. Public methods are safe for concurrent use.
type Runner struct {
	solver Solver
	opts   Options

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs a Runner.
func New(s Solver, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 4,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Runner{
		solver:     s,
		opts:       opts,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Run solves every job and returns the outcomes in job order. Job failures
// are reported per outcome; the error is the context's once it is done.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxConcurrentRuns)

	r.opts.Logger.Info("runner.batch.start", "jobs", len(jobs), "concurrency", r.opts.MaxConcurrentRuns)
	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = r.run(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	passed := 0
	for _, o := range outcomes {
		if o.Passed() {
			passed++
		}
	}
	r.opts.Logger.Info("runner.batch.complete", "jobs", len(jobs), "passed", passed)
	return outcomes, ctx.Err()
}

// Start runs job asynchronously. The returned channel delivers exactly one
// outcome and is then closed. The run id can be passed to Cancel.
func (r *Runner) Start(ctx context.Context, job Job) (string, <-chan Outcome) {
	if job.ID == "" {
		job.ID = core.NewID()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[job.ID] = cancel
	r.mu.Unlock()

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		defer cancel()
		out <- r.run(ctx, job)
	}()
	return job.ID, out
}

// Cancel cancels an active run by id.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("runner: run %s not found", runID)
	}
	cancel()
	return nil
}

// Active returns the ids of the runs in flight, sorted.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Runner) run(ctx context.Context, job Job) Outcome {
	if job.ID == "" {
		job.ID = core.NewID()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if _, started := r.activeRuns[job.ID]; !started {
		r.activeRuns[job.ID] = cancel
	}
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.activeRuns, job.ID)
		r.mu.Unlock()
	}()

	o := Outcome{Job: job}
	if job.Query == "" {
		o.Err = errors.New("runner: job has no query")
		return o
	}

	r.opts.Logger.Debug("runner.job.start", "job", job.ID)
	o.Result, o.Err = r.solver.Solve(ctx, job.Query, func(so *solver.Options) { so.SessionID = job.ID })
	if o.Err != nil {
		r.opts.Logger.Warn("runner.job.failed", "job", job.ID, "error", o.Err)
		return o
	}

	if job.Expect != nil && r.opts.Evaluator != nil {
		o.Report, o.Err = r.opts.Evaluator.Evaluate(ctx, o.Result, *job.Expect)
	}
	r.opts.Logger.Info("runner.job.complete",
		"job", job.ID,
		"stop_reason", o.Result.StopReason,
		"passed", o.Passed(),
	)
	return o
}
