package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Kind classifies a model call failure so callers can pick the right
// recovery: retry with backoff, swap to the secondary instruction set, or
// stop touching the chapter.
type Kind int

const (
	// KindTransient covers generic request failures worth retrying.
	KindTransient Kind = iota
	// KindTimeout marks an attempt that hit its wall-clock budget.
	KindTimeout
	// KindRateLimited marks quota responses; the Retry-After hint, when
	// present, stretches the backoff.
	KindRateLimited
	// KindContentBlocked marks a safety-filter refusal. Retrying the same
	// instruction set wastes quota, so these are never retried in place.
	KindContentBlocked
	// KindFatal marks failures no retry can fix (bad key, bad request).
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindContentBlocked:
		return "content_blocked"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified gateway failure.
type Error struct {
	Kind       Kind
	Status     int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	switch {
	case msg != "" && e.Status > 0:
		return fmt.Sprintf("model call %s: http %d: %s", e.Kind, e.Status, msg)
	case msg != "":
		return fmt.Sprintf("model call %s: %s", e.Kind, msg)
	case e.Err != nil:
		return fmt.Sprintf("model call %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("model call %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ErrExhausted is returned once every instruction set and retry budget has
// been spent on a chapter. Callers record the failure and move on; it never
// aborts a run.
var ErrExhausted = errors.New("translation attempts exhausted")

// ClassifyKind walks an error chain and reports the failure kind.
func ClassifyKind(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return KindTimeout
	}
	return KindTransient
}

// IsRetryable reports whether another attempt with the same instruction set
// can reasonably succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch ClassifyKind(err) {
	case KindTransient, KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}

// IsContentBlocked reports whether the failure was a safety-filter refusal.
func IsContentBlocked(err error) bool {
	return err != nil && ClassifyKind(err) == KindContentBlocked
}

// retryAfterHint extracts a server-provided wait from the error chain.
func retryAfterHint(err error) time.Duration {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.RetryAfter
	}
	return 0
}
