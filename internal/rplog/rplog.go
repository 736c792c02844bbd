// Package rplog provides the leveled logging helpers used across
// renderify's executor and provider layers.
//
// The teacher never reaches for a structured logging library anywhere in
// its tree (cmd/gateway/main.go, cmd/api/main.go, cmd/archflow/main.go all
// use the standard library's log.Printf/Fatalf/Println directly, with a
// bare "WARN: " prefix convention in internal/runner/executor.go), and no
// other pack repo carries a direct (non-indirect) logging dependency
// either, so this package stays on the standard library rather than
// reaching for zap/zerolog/logrus with nothing in the corpus to ground it.
package rplog

import (
	"fmt"
	"log"
)

// Logger wraps a *log.Logger with InsightifyCore's "LEVEL: message" prefix
// convention, adding a phase/component tag so executor diagnostics are
// traceable back to the package that raised them.
type Logger struct {
	component string
	std       *log.Logger
}

// New creates a Logger tagged with component, writing through std (nil
// uses log.Default()).
func New(component string, std *log.Logger) *Logger {
	if std == nil {
		std = log.Default()
	}
	return &Logger{component: component, std: std}
}

func (l *Logger) logf(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("%s: [%s] %s", level, l.component, msg)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) { l.logf("INFO", format, args...) }

// Warn logs a recoverable condition, mirroring InsightifyCore's
// `log.Printf("WARN: %s", msg)` convention in internal/runner/executor.go.
func (l *Logger) Warn(format string, args ...any) { l.logf("WARN", format, args...) }

// Error logs a failed operation that does not terminate the process.
func (l *Logger) Error(format string, args ...any) { l.logf("ERROR", format, args...) }

// With returns a Logger scoped to a sub-component, e.g.
// base.With("openai") for per-provider log lines.
func (l *Logger) With(subComponent string) *Logger {
	return &Logger{component: l.component + "." + subComponent, std: l.std}
}
