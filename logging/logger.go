package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel decouples level configuration from slog and zap.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a LogLevel, defaulting
// to LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger is the logging surface every fragmesh component accepts.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoOpLogger discards everything. It is the default for all components.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}

// Options configures a MeshLogger.
type Options struct {
	Level LogLevel
	// Format is "json" (default) or "text".
	Format    string
	Output    io.Writer
	AddSource bool
	// Attrs are attached to every entry.
	Attrs map[string]any
}

// MeshLogger is a slog backed Logger carrying session and component
// attributes plus helpers for the engine, planner and solver events.
// The With* methods return copies; the receiver is never modified.
type MeshLogger struct {
	logger    *slog.Logger
	level     LogLevel
	attrs     map[string]any
	component string
	sessionID string
}

var (
	_ Logger = (*MeshLogger)(nil)
	_ Logger = NoOpLogger{}
)

// New builds a MeshLogger writing JSON at info level to stderr unless
// configured otherwise.
func New(optFns ...func(o *Options)) *MeshLogger {
	opts := Options{
		Level:  LogLevelInfo,
		Format: "json",
		Output: os.Stderr,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: slogLevel(opts.Level), AddSource: opts.AddSource}
	var handler slog.Handler
	if opts.Format == "text" {
		handler = slog.NewTextHandler(opts.Output, hopts)
	} else {
		handler = slog.NewJSONHandler(opts.Output, hopts)
	}

	attrs := make(map[string]any, len(opts.Attrs))
	for k, v := range opts.Attrs {
		attrs[k] = v
	}
	return &MeshLogger{logger: slog.New(handler), level: opts.Level, attrs: attrs}
}

// NewSlogLogger is New with the three settings the CLI exposes.
func NewSlogLogger(level LogLevel, format string, addSource bool) *MeshLogger {
	return New(func(o *Options) {
		o.Level = level
		if format != "" {
			o.Format = format
		}
		o.AddSource = addSource
	})
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *MeshLogger) clone() *MeshLogger {
	nl := *l
	nl.attrs = make(map[string]any, len(l.attrs))
	for k, v := range l.attrs {
		nl.attrs[k] = v
	}
	return &nl
}

// WithContext returns a logger that adds key=value to every entry.
func (l *MeshLogger) WithContext(key string, value any) *MeshLogger {
	nl := l.clone()
	nl.attrs[key] = value
	return nl
}

// WithComponent sets the component attribute (engine, solver, planner).
func (l *MeshLogger) WithComponent(c string) *MeshLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession sets the session_id attribute.
func (l *MeshLogger) WithSession(sid string) *MeshLogger {
	nl := l.clone()
	nl.sessionID = sid
	return nl
}

// Debug logs at debug level.
func (l *MeshLogger) Debug(msg string, args ...any) { l.log(LogLevelDebug, msg, argsToAttrs(args)) }

// Info logs at info level.
func (l *MeshLogger) Info(msg string, args ...any) { l.log(LogLevelInfo, msg, argsToAttrs(args)) }

// Warn logs at warn level.
func (l *MeshLogger) Warn(msg string, args ...any) { l.log(LogLevelWarn, msg, argsToAttrs(args)) }

// Error logs at error level.
func (l *MeshLogger) Error(msg string, args ...any) { l.log(LogLevelError, msg, argsToAttrs(args)) }

// LogLLMCall records one oracle call. Failures are logged at error level
// as model.call.error.
func (l *MeshLogger) LogLLMCall(model string, chars int, dur time.Duration, success bool, err error) {
	msg, level := "model.call.success", LogLevelInfo
	if !success {
		msg, level = "model.call.error", LogLevelError
	}
	l.log(level, msg, withError([]slog.Attr{
		slog.String("model", model),
		slog.Int("chars", chars),
		slog.Duration("duration", dur),
		slog.Bool("success", success),
	}, err))
}

// LogBlock records the status of one executed command block as
// engine.block.<status>. Anything but "ok" is a warning.
func (l *MeshLogger) LogBlock(tool string, index int, status string, dur time.Duration, err error) {
	level := LogLevelInfo
	if status != "ok" {
		level = LogLevelWarn
	}
	l.log(level, "engine.block."+status, withError([]slog.Attr{
		slog.String("tool_name", tool),
		slog.Int("block", index),
		slog.Duration("duration", dur),
	}, err))
}

// LogSession records the end of a solving session.
func (l *MeshLogger) LogSession(steps int, completion float64, dur time.Duration, success bool, err error) {
	msg, level := "solver.session.complete", LogLevelInfo
	if !success {
		msg, level = "solver.session.failed", LogLevelError
	}
	l.log(level, msg, withError([]slog.Attr{
		slog.Int("steps", steps),
		slog.Float64("completion", completion),
		slog.Duration("duration", dur),
	}, err))
}

func (l *MeshLogger) log(level LogLevel, msg string, attrs []slog.Attr) {
	if level < l.level {
		return
	}
	all := make([]slog.Attr, 0, len(l.attrs)+len(attrs)+2)
	if l.component != "" {
		all = append(all, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		all = append(all, slog.String("session_id", l.sessionID))
	}
	for k, v := range l.attrs {
		all = append(all, slog.Any(k, v))
	}
	all = append(all, attrs...)
	l.logger.LogAttrs(context.Background(), slogLevel(level), msg, all...)
}

func withError(attrs []slog.Attr, err error) []slog.Attr {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	return attrs
}

// argsToAttrs converts slog-style alternating key/value pairs. A dangling
// value is reported under "!BADKEY" like slog does.
func argsToAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2+1)
	for len(args) > 0 {
		switch k := args[0].(type) {
		case slog.Attr:
			attrs = append(attrs, k)
			args = args[1:]
		case string:
			if len(args) == 1 {
				attrs = append(attrs, slog.String("!BADKEY", k))
				return attrs
			}
			attrs = append(attrs, slog.Any(k, args[1]))
			args = args[2:]
		default:
			attrs = append(attrs, slog.Any("!BADKEY", k))
			args = args[1:]
		}
	}
	return attrs
}
