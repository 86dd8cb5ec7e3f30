// Package buildlog emits one structured event per build milestone:
// supervisor state transitions, fetch outcomes, warnings, and errors.
// Errors and warnings always reach stderr; per-transition and
// per-fetch progress is gated behind --verbose.
package buildlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger: warnings and errors by default, a
// full human-readable progress stream under --verbose.
type Logger struct {
	zl      zerolog.Logger
	verbose bool
}

// New constructs a Logger writing to stderr. Errors and warnings are
// always emitted; per-transition and per-fetch progress events only
// when verbose is set.
func New(verbose bool) *Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.InfoLevel
	}
	return &Logger{
		zl:      zerolog.New(writer).Level(level).With().Timestamp().Logger(),
		verbose: verbose,
	}
}

// Verbose reports whether this Logger was constructed with verbose
// output enabled.
func (l *Logger) Verbose() bool { return l.verbose }

// SupervisorTransition records one Idle/Starting/Ready/Failed/Dead
// state change.
func (l *Logger) SupervisorTransition(from, to string) {
	l.zl.Info().Str("component", "supervisor").Str("from", from).Str("to", to).Msg("state transition")
}

// FetchCompleted records one crawl-engine fetch's terminal outcome.
func (l *Logger) FetchCompleted(url string, status int, outcome string, attempts int) {
	l.zl.Info().
		Str("component", "crawl").
		Str("url", url).
		Int("status", status).
		Str("outcome", outcome).
		Int("attempts", attempts).
		Msg("fetch completed")
}

// Warn records a non-fatal condition: AssetOverwrite, a skipped
// HtmlParseError, a skipped InvalidUrl.
func (l *Logger) Warn(kind, message string) {
	l.zl.Warn().Str("kind", kind).Msg(message)
}

// Error records a single stderr line with kind, URL, and cause.
func (l *Logger) Error(kind, url string, cause error) {
	l.zl.Error().Str("kind", kind).Str("url", url).Err(cause).Msg("build error")
}

// Info records a one-line progress event not covered above (build
// start/finish, asset copy, config resolution).
func (l *Logger) Info(message string) {
	l.zl.Info().Msg(message)
}
