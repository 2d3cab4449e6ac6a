// Package runner solves batches of queries. Each job runs in its own session
// on a shared Solver, at most MaxConcurrentRuns at a time, and can be
// canceled individually by its run id. Jobs carrying an expectation are
// checked with an evaluation.Evaluator after they finish.
package runner
