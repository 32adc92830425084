package agentloop

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the orchestrator's taxonomy. Every error
// surfaced by a component carries exactly one Kind, which determines how the
// loop reacts to it: configuration errors abort before the loop starts,
// connection errors are retried, and security/parse/tool-execution errors are
// folded back into the conversation as failing tool results.
type Kind string

const (
	// KindConfiguration marks an unusable setting detected at startup.
	// Always fatal; never retried.
	KindConfiguration Kind = "configuration"

	// KindConnection marks an unreachable reasoning engine or endpoint.
	// Retried with backoff before being surfaced.
	KindConnection Kind = "connection"

	// KindProtocol marks a malformed discovery or invocation response, or a
	// tool result that matches no pending request.
	KindProtocol Kind = "protocol"

	// KindSecurity marks a blocked destructive query or path traversal.
	// Never retried; converted to a tool result the engine can observe.
	KindSecurity Kind = "security"

	// KindToolExecution marks an endpoint that was reached but reported a
	// failure for the call.
	KindToolExecution Kind = "tool_execution"

	// KindParse marks model output that remained unusable after all
	// sanitizer repairs.
	KindParse Kind = "parse"
)

// Error is the tagged error type used across the orchestrator.
// The remediation Hint travels as data so callers can render it without
// string-matching the message.
type Error struct {
	// Kind is the taxonomy discriminant.
	Kind Kind

	// Component names the component that produced the error
	// (e.g. "registry", "gateway", "sanitizer").
	Component string

	// Message is the human-readable description of what went wrong.
	Message string

	// Hint suggests how a human operator can fix the condition.
	// May be empty.
	Hint string

	// Err is the wrapped cause, if any.
	Err error
}

// NewError creates an Error with the given kind, component and message.
// Chain WithHint and WithCause to attach the optional fields.
func NewError(kind Kind, component, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
	}
}

// WithHint attaches a remediation hint and returns the error for chaining.
func (e *Error) WithHint(format string, args ...any) *Error {
	e.Hint = fmt.Sprintf(format, args...)
	return e
}

// WithCause attaches the underlying cause and returns the error for chaining.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Kind, e.Component, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err if it is (or wraps) an *Error,
// or the empty Kind otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HintOf returns the remediation hint of err if it carries one.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}
