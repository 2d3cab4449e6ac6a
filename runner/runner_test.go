package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/fragmesh/code/yaegi"
	"github.com/hupe1980/fragmesh/evaluation"
	"github.com/hupe1980/fragmesh/solver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSolver struct {
	running  atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	block    bool
	started  chan struct{}
	mu       sync.Mutex
	sessions []string
}

func (f *fakeSolver) Solve(ctx context.Context, query string, optFns ...func(o *solver.Options)) (*solver.Result, error) {
	var opts solver.Options
	for _, fn := range optFns {
		fn(&opts)
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, opts.SessionID)
	f.mu.Unlock()

	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block {
		<-ctx.Done()
		return &solver.Result{SessionID: opts.SessionID, Query: query, StopReason: solver.StopCanceled}, nil
	}
	if query == "explode" {
		return nil, errors.New("oracle unavailable")
	}
	time.Sleep(f.delay)
	return &solver.Result{
		SessionID:  opts.SessionID,
		Query:      query,
		StopReason: solver.StopComplete,
		Program:    "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(\"answer 42\") }\n",
	}, nil
}

func TestRunner_RunBoundedAndOrdered(t *testing.T) {
	f := &fakeSolver{delay: 20 * time.Millisecond}
	r := New(f, func(o *Options) { o.MaxConcurrentRuns = 2 })

	jobs := []Job{{ID: "a", Query: "q1"}, {ID: "b", Query: "q2"}, {ID: "c", Query: "q3"}, {ID: "d", Query: "q4"}, {Query: "q5"}}
	outcomes, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)

	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Equal(t, jobs[i].Query, o.Result.Query)
		assert.True(t, o.Passed())
	}
	assert.Equal(t, "c", outcomes[2].Result.SessionID)
	assert.NotEmpty(t, outcomes[4].Result.SessionID)
	assert.LessOrEqual(t, f.peak.Load(), int32(2))
	assert.Empty(t, r.Active())
}

func TestRunner_JobErrors(t *testing.T) {
	r := New(&fakeSolver{})
	outcomes, err := r.Run(context.Background(), []Job{{ID: "x", Query: "explode"}, {ID: "y"}})
	require.NoError(t, err)

	assert.ErrorContains(t, outcomes[0].Err, "oracle unavailable")
	assert.ErrorContains(t, outcomes[1].Err, "no query")
	assert.False(t, outcomes[0].Passed())
}

func TestRunner_Evaluates(t *testing.T) {
	r := New(&fakeSolver{}, func(o *Options) { o.Evaluator = evaluation.New(yaegi.New()) })
	outcomes, err := r.Run(context.Background(), []Job{
		{ID: "ok", Query: "q", Expect: &evaluation.Expectation{ProgramOutput: []string{"answer 42"}}},
		{ID: "bad", Query: "q", Expect: &evaluation.Expectation{StopReasons: []solver.StopReason{solver.StopVerified}}},
		{ID: "none", Query: "q"},
	})
	require.NoError(t, err)

	require.NotNil(t, outcomes[0].Report)
	assert.True(t, outcomes[0].Passed())
	require.NotNil(t, outcomes[1].Report)
	assert.False(t, outcomes[1].Passed())
	assert.Nil(t, outcomes[2].Report)
	assert.True(t, outcomes[2].Passed())
}

func TestRunner_StartAndCancel(t *testing.T) {
	f := &fakeSolver{block: true, started: make(chan struct{}, 1)}
	r := New(f)

	id, out := r.Start(context.Background(), Job{ID: "long", Query: "q"})
	assert.Equal(t, "long", id)
	<-f.started
	assert.Equal(t, []string{"long"}, r.Active())

	require.NoError(t, r.Cancel(id))
	o := <-out
	require.NoError(t, o.Err)
	assert.Equal(t, solver.StopCanceled, o.Result.StopReason)

	_, open := <-out
	assert.False(t, open)
	assert.Empty(t, r.Active())
	assert.Error(t, r.Cancel(id))
}

func TestRunner_ContextCanceled(t *testing.T) {
	f := &fakeSolver{block: true}
	r := New(f)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	outcomes, err := r.Run(ctx, []Job{{Query: "q"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, outcomes, 1)
	assert.Equal(t, solver.StopCanceled, outcomes[0].Result.StopReason)
}
