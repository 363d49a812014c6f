package agent

import (
	"context"
	"log/slog"
	"os"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Logger wraps a structured slog.Logger with the step/task timing and
// token-usage bookkeeping the loop needs around every call. It replaces
// printf-style console output with slog records a host can route anywhere
// (console, file, collector) via slog.Handler fan-out.
type Logger struct {
	slog *slog.Logger

	stepCount     int
	stepStartTime time.Time
	taskStartTime time.Time
	tokens        *TokenCounter
}

// NewLogger builds a Logger that fans records out to every given handler
// via slog-multi. Passing no handlers yields a text logger writing to
// stdout; use NewNopLogger to discard output.
func NewLogger(tokens *TokenCounter, handlers ...slog.Handler) *Logger {
	if tokens == nil {
		tokens = NewTokenCounter(0)
	}
	if len(handlers) == 0 {
		return &Logger{slog: slog.New(slog.NewTextHandler(os.Stdout, nil)), tokens: tokens}
	}
	fanout := slogmulti.Fanout(handlers...)
	return &Logger{slog: slog.New(fanout), tokens: tokens}
}

// NewNopLogger builds a Logger whose records are discarded, for callers
// that don't want console output (tests, embedding hosts with their own
// observability).
func NewNopLogger() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(discardWriter{}, nil)), tokens: NewTokenCounter(0)}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// TaskStart marks the beginning of a run.
func (l *Logger) TaskStart(instruction string) {
	l.taskStartTime = time.Now()
	l.stepCount = 0
	l.tokens.Reset()
	l.slog.Info("task started", slog.String("instruction", instruction))
}

// TaskEnd logs the total task duration and final token usage.
func (l *Logger) TaskEnd(elapsed time.Duration) {
	l.slog.Info("task finished",
		slog.Duration("elapsed", elapsed),
		slog.Int("steps", l.stepCount),
		slog.Int("tokens_used", l.tokens.Used()),
		slog.Float64("tokens_pct", l.tokens.UsagePercent()),
	)
}

// StepStart marks the beginning of an iteration of the inner loop.
func (l *Logger) StepStart(step int) {
	l.stepCount = step
	l.stepStartTime = time.Now()
	l.slog.Info("step started", slog.Int("step", step))
}

// StepEnd logs one completed iteration's timing.
func (l *Logger) StepEnd(step int, elapsed time.Duration) {
	l.slog.Info("step completed",
		slog.Int("step", step),
		slog.Duration("elapsed", elapsed),
		slog.Int("tokens_used", l.tokens.Used()),
	)
}

// Warn surfaces a recoverable condition (retry, clamp, sensitive screen).
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error surfaces a terminal failure.
func (l *Logger) Error(msg string, err error, args ...any) {
	l.slog.LogAttrs(context.Background(), slog.LevelError, msg, append([]slog.Attr{slog.Any("error", err)}, toAttrs(args)...)...)
}

func toAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}
