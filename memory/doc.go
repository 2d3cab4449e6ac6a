// Package memory implements the workflow tracker: the append-only audit log
// of executed tool steps plus the derived per-type completion view the
// planner consults to decide whether to continue.
//
// The tracker applies the same gating rule as the fragment registry but
// computes it from its own completion map. Both are driven from the same
// orchestrating path, so they agree by construction; Verify reports any
// divergence.
package memory
