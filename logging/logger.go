package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel decouples level configuration from slog.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLevel converts a case-insensitive level name. Unknown names map to info.
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

func (l LogLevel) toSlog() slog.Level {
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

// Logger is the logging contract every agentdeck component accepts.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoOpLogger discards everything. It is the default of every component.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// LoggerConfig configures a DeckLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
	Component string
	Attrs     map[string]any
}

// DefaultLoggerConfig returns JSON at info level on stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// DeckLogger is a slog backed Logger carrying component, session and run
// attributes. The With* methods return copies sharing the handler.
type DeckLogger struct {
	handler   slog.Handler
	component string
	sessionID string
	runID     string
	attrs     map[string]any
}

// NewLogger builds a DeckLogger from cfg, or from DefaultLoggerConfig when nil.
func NewLogger(cfg *LoggerConfig) *DeckLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlog(), AddSource: cfg.AddSource}
	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	}

	attrs := make(map[string]any, len(cfg.Attrs))
	for k, v := range cfg.Attrs {
		attrs[k] = v
	}
	return &DeckLogger{handler: h, component: cfg.Component, attrs: attrs}
}

// NewSlogLogger is a shorthand for NewLogger on stderr.
func NewSlogLogger(level LogLevel, format string, addSource bool) *DeckLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func (l *DeckLogger) clone() *DeckLogger {
	c := *l
	c.attrs = make(map[string]any, len(l.attrs))
	for k, v := range l.attrs {
		c.attrs[k] = v
	}
	return &c
}

// WithContext adds an attribute to every entry of the returned logger.
func (l *DeckLogger) WithContext(key string, value any) *DeckLogger {
	c := l.clone()
	c.attrs[key] = value
	return c
}

// WithComponent names the emitting component (controller, transport, server).
func (l *DeckLogger) WithComponent(component string) *DeckLogger {
	c := l.clone()
	c.component = component
	return c
}

// WithRun attaches session and run identifiers.
func (l *DeckLogger) WithRun(sessionID, runID string) *DeckLogger {
	c := l.clone()
	c.sessionID = sessionID
	c.runID = runID
	return c
}

func (l *DeckLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	if l.component != "" {
		r.AddAttrs(slog.String("component", l.component))
	}
	if l.sessionID != "" {
		r.AddAttrs(slog.String("session_id", l.sessionID))
	}
	if l.runID != "" {
		r.AddAttrs(slog.String("run_id", l.runID))
	}
	for k, v := range l.attrs {
		r.AddAttrs(slog.Any(k, v))
	}
	r.Add(args...)
	_ = l.handler.Handle(ctx, r)
}

func (l *DeckLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *DeckLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *DeckLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *DeckLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// RunFinished records the terminal status of one server-side run. Failures
// are logged at warn level.
func RunFinished(l Logger, runID, agent, status string, dur time.Duration, err error) {
	args := []any{"run_id", runID, "agent", agent, "status", status, "duration", dur}
	if err != nil {
		l.Warn("run finished", append(args, "error", err.Error())...)
		return
	}
	l.Info("run finished", args...)
}

// StepFinished records the end of one step of a composed run.
func StepFinished(l Logger, index int, agent string, dur time.Duration, success bool) {
	args := []any{"step_index", index, "agent", agent, "duration", dur, "success", success}
	if !success {
		l.Warn("step finished", args...)
		return
	}
	l.Info("step finished", args...)
}

// ModelCall records the latency and token usage of one model call.
func ModelCall(l Logger, model string, tokens int, dur time.Duration, err error) {
	args := []any{"model", model, "token_count", tokens, "duration", dur}
	if err != nil {
		l.Error("model call failed", append(args, "error", err.Error())...)
		return
	}
	l.Debug("model call completed", args...)
}
