// Package artifact contains implementations of core.ArtifactStore and the
// Exporter that persists a session's fragments, assembled program and status.
//
// The ArtifactStore interface lives in core so that the solver can depend on
// it without importing a backend. Backends in this package:
//
//	InMemoryStore  in-process map, used by tests and dry runs
//	FileStore      <root>/<session>/<artifact> files (the session cache dir)
//	sqlite.Store   a single database file (subpackage sqlite)
//
// Artifact ids are flat file names such as "spec_TFIM_Spec_Tool.go" or
// "status.json"; stores reject ids containing path separators.
package artifact
