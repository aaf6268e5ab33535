// Package jsengine runs console scripts on the goja JavaScript runtime.
package jsengine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"

	"github.com/dop251/goja"

	"github.com/deixis/scriptconsole/internal/console"
	"github.com/deixis/scriptconsole/internal/source"
)

// ScriptName is the name scripts are compiled under. It appears in
// positions the runtime reports.
const ScriptName = "console.js"

var position = regexp.MustCompile(regexp.QuoteMeta(ScriptName) + `:\s*(?:Line\s+)?(\d+):(\d+)`)

// Engine executes scripts. Each call gets a fresh runtime, so an Engine is
// safe for concurrent use.
type Engine struct {
	imports source.FSResolver
}

// New returns an engine resolving imports against resources.
func New(resources fs.FS) *Engine {
	return &Engine{imports: source.FSResolver{FS: resources}}
}

// ResolveImports expands import directives the way Execute does.
func (e *Engine) ResolveImports(src string) (string, error) {
	return e.imports.ResolveImports(src)
}

// Execute runs src with every model entry bound as a global. Cancelling
// ctx interrupts the script.
func (e *Engine) Execute(ctx context.Context, src string, model map[string]any) error {
	resolved, err := e.imports.ResolveImports(src)
	if err != nil {
		return &console.ScriptError{Message: err.Error(), Err: err}
	}
	program, err := goja.Compile(ScriptName, resolved, false)
	if err != nil {
		return scriptError(err)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	for name, value := range model {
		if err := vm.Set(name, value); err != nil {
			return fmt.Errorf("binding %s: %w", name, err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	if _, err := vm.RunProgram(program); err != nil {
		return scriptError(err)
	}
	return nil
}

// UnwrapValue converts runtime values into plain Go values.
func (e *Engine) UnwrapValue(v any) any {
	if jv, ok := v.(goja.Value); ok {
		return jv.Export()
	}
	return v
}

func scriptError(err error) *console.ScriptError {
	se := &console.ScriptError{Message: err.Error(), Err: err}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		se.Message = "script interrupted"
		if cause, ok := interrupted.Value().(error); ok {
			se.Message += ": " + cause.Error()
			se.Err = cause
		}
		return se
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		if v := ex.Value(); v != nil {
			se.Message = v.String()
		}
		se.Stack = ex.String()
	}
	// The stack names the innermost script frame even when a Go function
	// raised the error.
	m := position.FindStringSubmatch(se.Stack)
	if m == nil {
		m = position.FindStringSubmatch(err.Error())
	}
	if m != nil {
		se.Line, _ = strconv.Atoi(m[1])
		se.Column, _ = strconv.Atoi(m[2])
	}
	return se
}
