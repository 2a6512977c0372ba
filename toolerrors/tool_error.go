// Package toolerrors provides structured error types for tool invocation
// failures. ToolError preserves error chains and supports errors.Is/As while
// staying serialization-safe across the workspace/hook/observability
// boundaries in the coordination core.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool failure. Causes are chained via
// Cause rather than the stdlib wrapping verbs so the chain survives JSON
// round-trips through status.json and hook payloads.
type ToolError struct {
	Message string     `json:"message"`
	Cause   *ToolError `json:"cause,omitempty"`
}

// New constructs a ToolError with the provided message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError wrapping an underlying error.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns the result as a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap supports errors.Is/As across the cause chain.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Reason codes for workflow-protocol enforcement events (spec §4.5, §4.7).
// These are the stable, machine-readable values recorded in
// agents.<id>.enforcement_attempts[].reason.
const (
	ReasonNoWorkflowTool  = "no_workflow_tool"
	ReasonNoToolCalls     = "no_tool_calls"
	ReasonInvalidVoteID   = "invalid_vote_id"
	ReasonVoteNoAnswers   = "vote_no_answers"
	ReasonVoteAndAnswer   = "vote_and_answer"
	ReasonAnswerLimit     = "answer_limit"
	ReasonAnswerNovelty   = "answer_novelty"
	ReasonAnswerDuplicate = "answer_duplicate"
	ReasonUnknownTool     = "unknown_tool"
)

// Workspace/permission error constructors (spec §4.1 Failure semantics).
// These are ordinary ToolErrors with stable messages so callers can match on
// Error() text in tests without exporting sentinel values for every case.

// ErrReadBeforeDelete reports that a delete was attempted without a prior
// successful read of the same path in the same session.
func ErrReadBeforeDelete(path string) *ToolError {
	return Errorf("delete denied: %q was not read before delete in this session", path)
}

// ErrProtectedPath reports an attempt to modify or delete a protected path.
func ErrProtectedPath(path string) *ToolError {
	return Errorf("operation denied: %q is a protected path", path)
}

// ErrPermissionDenied reports a read/write permission violation.
func ErrPermissionDenied(path, mode string) *ToolError {
	return Errorf("permission denied: %s access to %q is not granted", mode, path)
}
