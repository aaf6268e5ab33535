package report

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/deixis/scriptconsole/internal/console"
)

// causeDepth bounds how far the message lookup follows the cause chain.
const causeDepth = 2

// Status describes the transport status of an error payload.
type Status struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var (
	internalError = Status{
		Code:        500,
		Name:        "Internal Error",
		Description: "An error inside the HTTP server which prevented it from fulfilling the request.",
	}
	badRequest = Status{
		Code:        400,
		Name:        "Bad Request",
		Description: "Request sent by the client was syntactically incorrect.",
	}
)

// ErrorPayload is the body returned for a failed request.
type ErrorPayload struct {
	Status    Status `json:"status"`
	Message   string `json:"message"`
	Callstack string `json:"callstack"`

	// Result is the serialized partial result, when one was captured.
	Result string `json:"result,omitempty"`

	// ScriptOffset maps an engine-reported line back to the user's
	// script: userLine = reportedLine + ScriptOffset.
	ScriptOffset int `json:"scriptOffset"`
}

// NewErrorPayload describes err. Requests rejected with
// console.ErrInvalidRequest get a 400 status, everything else a 500.
func NewErrorPayload(err error) ErrorPayload {
	p := ErrorPayload{
		Status:    internalError,
		Message:   causeMessage(err),
		Callstack: callstack(err),
	}
	if errors.Is(err, console.ErrInvalidRequest) {
		p.Status = badRequest
	}

	var execErr *console.ExecutionError
	if errors.As(err, &execErr) {
		p.ScriptOffset = execErr.Offset
		if execErr.Partial != nil {
			if data, merr := json.Marshal(execErr.Partial); merr == nil {
				p.Result = string(data)
			}
		}
	}
	return p
}

// causeMessage returns the message of the deepest cause at most
// causeDepth levels below err.
func causeMessage(err error) string {
	msg := err.Error()
	for i := 0; i < causeDepth; i++ {
		err = errors.Unwrap(err)
		if err == nil {
			break
		}
		msg = err.Error()
	}
	return msg
}

// callstack lists err and its causes, then any script or goroutine stack
// found in the chain.
func callstack(err error) string {
	var b strings.Builder
	for e, depth := err, 0; e != nil; e, depth = errors.Unwrap(e), depth+1 {
		if depth > 0 {
			b.WriteString("caused by: ")
		}
		b.WriteString(e.Error())
		b.WriteByte('\n')
	}

	var scriptErr *console.ScriptError
	if errors.As(err, &scriptErr) && scriptErr.Stack != "" {
		b.WriteString("\nscript stack:\n")
		b.WriteString(strings.TrimRight(scriptErr.Stack, "\n"))
		b.WriteByte('\n')
	}
	var panicErr *console.PanicError
	if errors.As(err, &panicErr) {
		b.WriteString("\ngoroutine stack:\n")
		b.Write(panicErr.Stack)
	}
	return b.String()
}
