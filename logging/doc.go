// Package logging provides a minimal logging interface and adapters for fragmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the engine, solver and tools use for observability. This
// package includes:
//
//   - MeshLogger, a log/slog backed logger with session and component
//     attributes and helpers for oracle calls, blocks and sessions
//   - ZapAdapter wrapping go.uber.org/zap
//   - NoOpLogger, the default everywhere
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(graph, catalog, unit, func(o *engine.Options) { o.Logger = logger })
//
// Messages are dotted event names ("engine.block.timeout") followed by
// slog-style key/value pairs.
package logging
