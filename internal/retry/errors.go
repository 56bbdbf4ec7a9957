package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Permanent marks an error as non-retryable.
//
// Operations wrap validation errors or other permanent failures with
// Permanent so the executor won't waste attempts on them.
//
// Example:
//
//	return retry.Permanent(fmt.Errorf("bad input: %w", err))
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err is wrapped with Permanent.
func IsPermanent(err error) bool {
	var e permanentError
	return errors.As(err, &e)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e permanentError) Unwrap() error { return e.err }

// WithRetryAfter attaches a server-specified wait hint to an error.
//
// Useful when the downstream system returns a Retry-After value (e.g. HTTP
// 429 or a Telegram flood wait). The executor respects the hint (bounded by
// Policy.MaxWait) instead of the computed backoff.
func WithRetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

// RetryAfterError is implemented by errors that carry an explicit retry delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }

// StatusError is a transport failure carrying an HTTP-style status code.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("status %d", e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// retryableStatuses mirrors the provider behavior the pipeline talks to:
// rate limiting and upstream gateway hiccups are worth retrying, everything
// else (auth, malformed request) is not.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:    true, // 429
	http.StatusBadGateway:         true, // 502
	http.StatusServiceUnavailable: true, // 503
	http.StatusGatewayTimeout:     true, // 504
}

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// DefaultClassifier treats connection/timeout errors and rate-limit style
// HTTP statuses as retryable. Permanent() always wins over it.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retryableStatuses[se.Status]
	}
	var ra RetryAfterError
	if errors.As(err, &ra) {
		// A server telling us when to come back is asking to be retried.
		return true
	}
	return false
}
