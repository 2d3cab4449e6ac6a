// Package session holds the per-session variable namespace shared by every
// block the engine executes.
//
// The namespace grows monotonically: fragments merge their captured
// bindings into it, and every later block sees a snapshot of it as
// context. Names are never removed; a later merge overwrites an earlier
// value under the same name.
package session
