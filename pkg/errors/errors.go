// Package errors defines the unified error taxonomy for lookup
// operations. Every failure surfaced to a client maps to one of these
// kinds; transport handlers translate kinds to HTTP status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error kinds.
const (
	KindNotFound            = "not_found"
	KindRateLimited         = "rate_limited"
	KindProviderError       = "provider_error"
	KindUpstreamUnavailable = "upstream_unavailable"
	KindLLMError            = "llm_error"
	KindTimeout             = "timeout"
	KindDeadlineExceeded    = "deadline_exceeded"
	KindCancelled           = "cancelled"
	KindStorageError        = "storage_error"
	KindCorruptedCache      = "corrupted_cache"
	KindShuttingDown        = "shutting_down"
	KindInternal            = "internal"
)

// LookupError is a standardized pipeline error. It carries the failing
// stage and provider when known so logs and client responses can point
// at the culprit.
type LookupError struct {
	Kind       string        `json:"kind"`
	Message    string        `json:"message"`
	Stage      string        `json:"stage,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	RetryAfter time.Duration `json:"-"`
	Retryable  bool          `json:"-"`
	Err        error         `json:"-"`
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (provider=%s, stage=%s)", e.Kind, e.Message, e.Provider, e.Stage)
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s (stage=%s)", e.Kind, e.Message, e.Stage)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *LookupError) Unwrap() error { return e.Err }

// HTTPStatusCode maps the kind to an HTTP status.
func (e *LookupError) HTTPStatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout, KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case KindCancelled:
		return 499 // client closed request
	case KindUpstreamUnavailable, KindStorageError:
		return http.StatusBadGateway
	case KindShuttingDown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a LookupError of the given kind.
func New(kind, message string) *LookupError {
	return &LookupError{Kind: kind, Message: message, Retryable: retryableKind(kind)}
}

// Wrap creates a LookupError of the given kind around an underlying
// cause.
func Wrap(kind string, err error, message string) *LookupError {
	return &LookupError{Kind: kind, Message: message, Err: err, Retryable: retryableKind(kind)}
}

// WithStage returns a copy annotated with the pipeline stage.
func (e *LookupError) WithStage(stage string) *LookupError {
	c := *e
	c.Stage = stage
	return &c
}

// WithProvider returns a copy annotated with the failing provider.
func (e *LookupError) WithProvider(provider string) *LookupError {
	c := *e
	c.Provider = provider
	return &c
}

func retryableKind(kind string) bool {
	switch kind {
	case KindRateLimited, KindTimeout, KindUpstreamUnavailable, KindStorageError:
		return true
	default:
		return false
	}
}

// NotFound creates a not_found error for a query.
func NotFound(query string) *LookupError {
	return New(KindNotFound, fmt.Sprintf("no entry found for %q", query))
}

// RateLimited creates a rate_limited error honouring a provider-reported
// retry delay.
func RateLimited(provider string, retryAfter time.Duration) *LookupError {
	e := New(KindRateLimited, "rate limited by upstream")
	e.Provider = provider
	e.RetryAfter = retryAfter
	return e
}

// KindOf extracts the kind from an arbitrary error, defaulting to
// internal. Context cancellation and deadline errors map to their kinds
// even when unwrapped.
func KindOf(err error) string {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadlineExceeded
	default:
		return KindInternal
	}
}

// FromContextErr converts a context error into a LookupError.
func FromContextErr(err error) *LookupError {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindDeadlineExceeded, err, "pipeline deadline exceeded")
	}
	return Wrap(KindCancelled, err, "request cancelled")
}
