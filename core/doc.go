// Package core provides the foundational domain types and store interfaces
// shared by every fragmesh component. It defines:
//
//   - Fragments (units of tool-emitted source tagged with a semantic type)
//   - Outcomes (the per-block result of executing a tool command)
//   - Steps (immutable audit records of executed tool commands)
//   - Pluggable stores for persisted session artifacts
//   - A call limiter bounding the oracle calls of a session
//
// The package intentionally keeps orchestration concerns (registry, engine,
// assembly) out of scope so that every other package can depend on it
// without introducing cycles.
package core
