package crawl

import (
	"fmt"
	"time"

	"github.com/fledgehq/fledge/pkg/classify"
)

// FetchErrorCause distinguishes a transport-level failure from an HTTP
// response the server itself returned.
type FetchErrorCause string

const (
	CauseNetwork     FetchErrorCause = "network"
	CauseServerError FetchErrorCause = "server-error"
	CauseClientError FetchErrorCause = "client-error"
)

// FetchError reports a failed fetch attempt. 5xx and 4xx other than
// 404/410 retry, network errors retry, 404/410 do not.
type FetchError struct {
	Message   string
	Retryable bool
	Cause     FetchErrorCause
	// Status is the HTTP status that produced this error, 0 for
	// transport-level failures that never saw a response.
	Status int
	// RetryAfter carries a 429 response's Retry-After delay, 0 when
	// the server gave none.
	RetryAfter time.Duration
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error (%s): %s", e.Cause, e.Message)
}

func (e *FetchError) Severity() classify.Severity {
	if e.Retryable {
		return classify.SeverityRecoverable
	}
	return classify.SeverityFatal
}

// IsRetryable satisfies pkg/retry.Retryable.
func (e *FetchError) IsRetryable() bool { return e.Retryable }

var _ classify.ClassifiedError = (*FetchError)(nil)
