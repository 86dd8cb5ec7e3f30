// Package classify defines the cross-cutting error classification used by
// every domain package: an error that knows whether it is fatal to the
// build or merely recoverable for the one URL/operation that produced it.
package classify

// Severity distinguishes errors that must abort a build from errors that
// are local to a single URL or operation.
type Severity int

const (
	SeverityFatal Severity = iota
	SeverityRecoverable
)

// ClassifiedError is any error that can report its own severity. Every
// domain-specific error type (config.ConfigError, supervisor.BootError,
// crawl.FetchError, materialize.WriteError, ...) implements this.
type ClassifiedError interface {
	error
	Severity() Severity
}
