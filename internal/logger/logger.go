package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

// New builds a slog.Logger from the configuration. Output may be "stdout",
// "stderr" or a file path; files are opened append-only and never coloured.
// There is no package-level logger: the returned value is threaded through
// context.Context by the callers.
func New(cfg Config) (*slog.Logger, error) {
	var w io.Writer
	useColor := false

	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		w = os.Stdout
		useColor = isTerminal(os.Stdout.Fd())
	case "stderr":
		w = os.Stderr
		useColor = isTerminal(os.Stderr.Fd())
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		w = f
	}

	return NewWithWriter(w, cfg.Level, cfg.Format, useColor), nil
}

// NewWithWriter builds a logger writing to w. Useful for tests.
func NewWithWriter(w io.Writer, level, format string, enableColor bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = NewTextHandler(w, opts, enableColor)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type loggerKey struct{}

// WithLogger stores the logger in the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext retrieves the logger from the context. A context without a
// logger yields a discard logger so call sites never nil-check.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(12)}))
}

// ============================================================================
// Context-aware logging API
// ============================================================================

// Debug logs at debug level, merging connection fields from the context.
func Debug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, appendContextFields(ctx, args)...)
}

// Info logs at info level, merging connection fields from the context.
func Info(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, appendContextFields(ctx, args)...)
}

// Warn logs at warn level, merging connection fields from the context.
func Warn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, appendContextFields(ctx, args)...)
}

// Error logs at error level, merging connection fields from the context.
func Error(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, appendContextFields(ctx, args)...)
}

// appendContextFields prepends the connection Context fields so they appear
// first in output.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := ContextFrom(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 10+len(args))

	if lc.ClientIP != "" {
		ctxArgs = append(ctxArgs, KeyClientIP, lc.ClientIP)
	}
	if lc.ClientPort != 0 {
		ctxArgs = append(ctxArgs, KeyClientPort, lc.ClientPort)
	}
	if lc.User != "" {
		ctxArgs = append(ctxArgs, KeyUser, lc.User)
	}
	if lc.NodeID >= 0 {
		ctxArgs = append(ctxArgs, KeyNodeID, lc.NodeID)
	}
	if lc.Command != "" {
		ctxArgs = append(ctxArgs, KeyCommand, lc.Command)
	}

	return append(ctxArgs, args...)
}
