package console

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks a request body that cannot be turned into an
	// execution plan. Nothing is executed or cached for such a request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNodeNotFound is returned by an ObjectStore for an unknown ref.
	ErrNodeNotFound = errors.New("node not found")

	// ErrAccessDenied is returned by an ObjectStore when the current
	// principal may not read a node.
	ErrAccessDenied = errors.New("access denied")
)

// RequestError describes why a request was rejected. It matches
// ErrInvalidRequest under errors.Is and is the deepest cause reported.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string { return "invalid request: " + e.Reason }

func (e *RequestError) Is(target error) bool { return target == ErrInvalidRequest }

// ExecutionError is returned by Orchestrator.Run when any step fails. It
// carries the result fields collected before the failure and the offset of
// the rewritten script.
type ExecutionError struct {
	Cause   error
	Partial *Result
	Offset  int
}

func (e *ExecutionError) Error() string {
	return "script execution failed: " + e.Cause.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// ScriptError is a failure raised while a script engine runs a script.
// Line and Column refer to the executed (rewritten) source; add the
// script offset to Line to get the line the user wrote.
type ScriptError struct {
	Message string
	Line    int
	Column  int
	Stack   string
	Err     error
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, column %d)", e.Message, e.Line, e.Column)
	}
	return e.Message
}

func (e *ScriptError) Unwrap() error { return e.Err }

// TemplateError is a failure raised while rendering the template.
type TemplateError struct {
	Err error
}

func (e *TemplateError) Error() string {
	return "rendering template: " + e.Err.Error()
}

func (e *TemplateError) Unwrap() error { return e.Err }

// PanicError is a panic recovered during execution.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
