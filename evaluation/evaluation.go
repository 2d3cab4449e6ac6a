// Package evaluation checks finished sessions against expectations: the stop
// reason, the completed semantic types, the completion percentage and the
// output of the assembled program.
package evaluation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/fragmesh/code"
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/solver"
)

// Expectation describes what a finished session must show. Zero fields are
// not checked.
type Expectation struct {
	StopReasons   []solver.StopReason `json:"stop_reasons,omitempty" yaml:"stop_reasons,omitempty"`
	Types         []core.Type         `json:"types,omitempty" yaml:"types,omitempty"`
	MinCompletion float64             `json:"min_completion,omitempty" yaml:"min_completion,omitempty"`
	// ProgramOutput lists substrings the program must print. The program is
	// only run when this is set.
	ProgramOutput []string `json:"program_output,omitempty" yaml:"program_output,omitempty"`
}

// Check is one evaluated expectation.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report is the evaluation of one session.
type Report struct {
	SessionID string  `json:"session_id"`
	Passed    bool    `json:"passed"`
	Checks    []Check `json:"checks"`
	Stdout    string  `json:"stdout,omitempty"`
}

// Failed returns the checks that did not pass.
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Options configures an Evaluator.
type Options struct {
	// Timeout bounds a program run.
	Timeout time.Duration
	Logger  logging.Logger
}

// Evaluator runs the checks. It is safe for concurrent use when its unit is.
type Evaluator struct {
	unit code.Unit
	opts Options
}

// New creates an evaluator running programs on unit.
func New(unit code.Unit, optFns ...func(o *Options)) *Evaluator {
	opts := Options{Timeout: time.Minute, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Evaluator{unit: unit, opts: opts}
}

// Evaluate checks res against exp. Check failures are reported, not
// returned; the error is reserved for a canceled context.
func (e *Evaluator) Evaluate(ctx context.Context, res *solver.Result, exp Expectation) (*Report, error) {
	r := &Report{SessionID: res.SessionID}

	if len(exp.StopReasons) > 0 {
		r.add("stop_reason", slices.Contains(exp.StopReasons, res.StopReason), string(res.StopReason))
	}
	for _, t := range exp.Types {
		r.add("type:"+string(t), res.Status.Completion[t], "")
	}
	if exp.MinCompletion > 0 {
		got := res.Status.CompletionPercentage
		r.add("completion", got >= exp.MinCompletion, fmt.Sprintf("%.1f%% (want >= %.1f%%)", got, exp.MinCompletion))
	}
	if len(exp.ProgramOutput) > 0 {
		if err := e.runProgram(ctx, res.Program, exp.ProgramOutput, r); err != nil {
			return nil, err
		}
	}

	r.Passed = len(r.Failed()) == 0
	e.opts.Logger.Info("evaluation.complete", "session", r.SessionID, "passed", r.Passed, "checks", len(r.Checks))
	return r, nil
}

func (e *Evaluator) runProgram(ctx context.Context, program string, want []string, r *Report) error {
	if strings.TrimSpace(program) == "" {
		r.add("program", false, "no program")
		return nil
	}
	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	resp, err := e.unit.Run(runCtx, code.Request{Source: program})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		r.add("program", false, err.Error())
		return nil
	}
	r.Stdout = resp.Stdout
	r.add("program", true, "")
	for _, w := range want {
		r.add("output:"+w, strings.Contains(resp.Stdout, w), "")
	}
	return nil
}

func (r *Report) add(name string, passed bool, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, Passed: passed, Detail: detail})
}
