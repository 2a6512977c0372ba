package model

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies backend failures into a small set of
// categories suitable for retry and enforcement decisions.
type ProviderErrorKind string

const (
	// ProviderErrorKindAuth indicates authentication/authorization failures.
	ProviderErrorKindAuth ProviderErrorKind = "auth"

	// ProviderErrorKindInvalidRequest indicates the request is invalid and
	// retrying without changing it will not succeed.
	ProviderErrorKindInvalidRequest ProviderErrorKind = "invalid_request"

	// ProviderErrorKindRateLimited indicates the backend is throttling requests.
	ProviderErrorKindRateLimited ProviderErrorKind = "rate_limited"

	// ProviderErrorKindContextOverflow indicates the backend rejected the
	// call because the assembled request exceeded its context window. The
	// agent runner routes this kind to the Context Compression Adapter
	// (spec §4.4 step 5, §4.8) rather than treating it as a generic
	// transient failure.
	ProviderErrorKindContextOverflow ProviderErrorKind = "context_overflow"

	// ProviderErrorKindUnavailable indicates a transient backend failure
	// (5xx, network issues) where a retry may succeed.
	ProviderErrorKindUnavailable ProviderErrorKind = "unavailable"

	// ProviderErrorKindUnknown indicates an unclassified backend failure.
	ProviderErrorKindUnknown ProviderErrorKind = "unknown"
)

// ProviderError describes a failure returned by an agent's model backend.
// It crosses the agent runner / scheduler boundary so the observability
// store can surface stable, structured failure information in status.json
// without re-parsing backend-specific error strings.
type ProviderError struct {
	backend   string
	agentID   string
	http      int
	kind      ProviderErrorKind
	code      string
	message   string
	retryable bool
	cause     error
}

// NewProviderError constructs a ProviderError. backend and kind are required.
func NewProviderError(backend, agentID string, httpStatus int, kind ProviderErrorKind, code, message string, retryable bool, cause error) *ProviderError {
	if backend == "" {
		panic("model: backend is required")
	}
	if kind == "" {
		panic("model: provider error kind is required")
	}
	return &ProviderError{
		backend:   backend,
		agentID:   agentID,
		http:      httpStatus,
		kind:      kind,
		code:      code,
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}

// Backend returns the backend identifier (e.g. "claude-opus-4").
func (e *ProviderError) Backend() string { return e.backend }

// AgentID returns the agent that was streaming when the failure occurred.
func (e *ProviderError) AgentID() string { return e.agentID }

// HTTPStatus returns the backend HTTP status code when available, else 0.
func (e *ProviderError) HTTPStatus() int { return e.http }

// Kind returns the coarse-grained failure classification.
func (e *ProviderError) Kind() ProviderErrorKind { return e.kind }

// Code returns the backend-specific error code when available.
func (e *ProviderError) Code() string { return e.code }

// Message returns the backend error message when available.
func (e *ProviderError) Message() string { return e.message }

// Retryable reports whether retrying the call may succeed unchanged.
func (e *ProviderError) Retryable() bool { return e.retryable }

func (e *ProviderError) Error() string {
	status := ""
	if e.http > 0 {
		status = fmt.Sprintf("%d ", e.http)
	}
	code := ""
	if e.code != "" {
		code = e.code + ": "
	}
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s[%s] %s(%s): %s", e.backend, e.kind, status, e.agentID, code+msg)
}

// Unwrap returns the underlying cause to preserve the original error chain.
func (e *ProviderError) Unwrap() error { return e.cause }

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
