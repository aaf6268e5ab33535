// Package console runs operator scripts against the repository. It builds
// the script model, applies impersonation and transactional wrapping, drives
// the script and template engines and assembles the result.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/deixis/scriptconsole/internal/output"
	"github.com/deixis/scriptconsole/internal/source"
)

// State is a stage of a run, reported to Orchestrator.OnState.
type State int

const (
	StateParsed State = iota
	StateImpersonating
	StateTransacting
	StateExecuting
	StateRetry
	StateRendering
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	"parsed", "impersonating", "transacting", "executing",
	"retry", "rendering", "completed", "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Orchestrator executes requests. Its fields are set once and then shared
// by concurrent runs.
type Orchestrator struct {
	Store    ObjectStore
	Tx       TransactionManager
	Auth     Authenticator
	Script   ScriptEngine
	Template TemplateEngine

	// Dump is optional. When set, a document's dump is added to the result
	// and scripts can call dump(ref).
	Dump DumpFunc

	// Bindings adds entries to the script model. It is called once per
	// attempt with the attempt's context. Built-in names take precedence.
	Bindings func(ctx context.Context) map[string]any

	// OnState observes state transitions.
	OnState func(State)

	Logger *slog.Logger
}

// Validate reports missing collaborators.
func (o *Orchestrator) Validate() error {
	var missing []string
	if o.Store == nil {
		missing = append(missing, "object store")
	}
	if o.Tx == nil {
		missing = append(missing, "transaction manager")
	}
	if o.Auth == nil {
		missing = append(missing, "authenticator")
	}
	if o.Script == nil {
		missing = append(missing, "script engine")
	}
	if o.Template == nil {
		missing = append(missing, "template engine")
	}
	if len(missing) > 0 {
		return fmt.Errorf("orchestrator: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// step is one layer of a run. Decorators wrap a step in another.
type step func(ctx context.Context) error

// Run executes req. script is the rewritten form of req.Script and buf
// receives printed lines. Failures are returned as *ExecutionError.
func (o *Orchestrator) Run(ctx context.Context, req Request, script source.Rewritten, buf output.Buffer) (*Result, error) {
	start := time.Now()
	x := &execution{
		o:      o,
		req:    req,
		script: script,
		buf:    buf,
		logger: o.logger(),
		res:    &Result{ScriptOffset: script.Offset},
	}
	x.enter(StateParsed)
	// Stale chunks from an earlier run on the channel go before anything
	// can fail. Transactions reset again before every attempt.
	x.reset()

	run := x.guard(x.attempt)
	if req.Mode != TxNone {
		run = o.inTransaction(req.Mode == TxReadOnly, x.reset, x.enterStep(StateTransacting, run))
	}
	if req.RunAs != "" {
		run = o.runAs(req.RunAs, x.enterStep(StateImpersonating, run))
	}

	err := x.guard(run)(ctx)
	x.res.PrintOutput = buf.Lines()
	x.res.WebscriptTime = time.Since(start)
	x.logger.Debug("run finished",
		"webscript_ms", x.res.WebscriptTime.Milliseconds(),
		"script_ms", x.res.ScriptTime.Milliseconds(),
		"attempts", x.attempts)

	if err != nil {
		x.enter(StateFailed)
		return nil, &ExecutionError{Cause: err, Partial: x.res, Offset: script.Offset}
	}
	x.enter(StateCompleted)
	return x.res, nil
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) runAs(principal string, next step) step {
	return func(ctx context.Context) error {
		return o.Auth.RunAs(ctx, principal, next)
	}
}

// inTransaction runs next as a unit of work. reset is called at the start
// of every attempt so a retried attempt starts from empty output.
func (o *Orchestrator) inTransaction(readOnly bool, reset func(), next step) step {
	return func(ctx context.Context) error {
		return o.Tx.RunInTransaction(ctx, readOnly, func(ctx context.Context) error {
			reset()
			return next(ctx)
		})
	}
}

// execution is the state of one run.
type execution struct {
	o        *Orchestrator
	req      Request
	script   source.Rewritten
	buf      output.Buffer
	logger   *slog.Logger
	res      *Result
	attempts int
}

func (x *execution) enter(s State) {
	x.logger.Debug("console state", "state", s.String())
	if x.o.OnState != nil {
		x.o.OnState(s)
	}
}

func (x *execution) enterStep(s State, next step) step {
	return func(ctx context.Context) error {
		x.enter(s)
		return next(ctx)
	}
}

// guard turns a panic in fn into a *PanicError.
func (x *execution) guard(fn step) step {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				x.logger.Error("panic during script execution", "panic", r)
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return fn(ctx)
	}
}

// reset drops everything a failed attempt left behind.
func (x *execution) reset() {
	if err := x.buf.Clear(); err != nil {
		x.logger.Warn("clearing output before attempt", "err", err)
	}
	x.res = &Result{ScriptOffset: x.script.Offset}
}

// attempt runs the script and the template once.
func (x *execution) attempt(ctx context.Context) error {
	x.attempts++
	if x.attempts > 1 {
		x.enter(StateRetry)
	}
	x.enter(StateExecuting)
	o, res := x.o, x.res

	space, err := x.space(ctx)
	if err != nil {
		return err
	}
	var document *Node
	if x.req.DocumentRef != "" {
		document, err = o.Store.Node(ctx, x.req.DocumentRef)
		if errors.Is(err, ErrNodeNotFound) {
			x.logger.Warn("document not found", "ref", x.req.DocumentRef)
			document = nil
		} else if err != nil {
			return fmt.Errorf("loading document: %w", err)
		}
	}

	status := &Status{Code: 200}
	cache := &CacheControl{NeverCache: true}
	args := x.req.Args()
	returnModel := make(map[string]any)
	jsconsole := newConsole(ctx, x.buf, o.Store, space, x.logger)

	model := map[string]any{
		"status":    status,
		"cache":     cache,
		"args":      args,
		"model":     returnModel,
		"jsconsole": jsconsole,
		"logger":    &ScriptLogger{console: jsconsole, logger: x.logger},
		"space":     space,
	}
	if document != nil {
		model["document"] = document
	}
	if o.Dump != nil {
		model["dump"] = func(ref string) (DumpRecord, error) {
			return o.Dump(ctx, ref)
		}
	}
	if home, err := o.Store.CompanyHome(ctx); err == nil {
		model["companyhome"] = home
	}
	if o.Bindings != nil {
		for k, v := range o.Bindings(ctx) {
			if _, taken := model[k]; !taken {
				model[k] = v
			}
		}
	}

	start := time.Now()
	err = o.Script.Execute(ctx, x.script.Source, model)
	res.ScriptTime = time.Since(start)
	res.PrintOutput = x.buf.Lines()
	if document != nil && o.Dump != nil {
		if rec, derr := o.Dump(ctx, document.Ref); derr != nil {
			x.logger.Warn("dumping document", "ref", document.Ref, "err", derr)
		} else {
			res.DumpOutput = append(res.DumpOutput, rec)
		}
	}
	x.logger.Debug("script executed", "script_ms", res.ScriptTime.Milliseconds())
	if err != nil {
		return err
	}

	current := jsconsole.GetSpace()
	res.SpaceRef = current.Ref
	if res.SpacePath, err = SpacePath(ctx, o.Store, current); err != nil {
		return fmt.Errorf("resolving space path: %w", err)
	}

	templateModel := map[string]any{
		"status": status,
		"cache":  cache,
		"args":   args,
	}
	MergeModel(o.Script, returnModel, templateModel)
	res.Status = status
	res.CacheControl = cache

	if status.Redirect {
		res.StatusResponseSent = true
		return nil
	}
	if strings.TrimSpace(x.req.Template) == "" {
		return nil
	}

	x.enter(StateRendering)
	start = time.Now()
	rendered, err := o.Template.Render(ctx, x.req.Template, templateModel)
	res.TemplateTime = time.Since(start)
	x.logger.Debug("template rendered", "template_ms", res.TemplateTime.Milliseconds())
	if err != nil {
		return &TemplateError{Err: err}
	}
	res.RenderedTemplate = rendered
	res.TemplateRendered = true
	return nil
}

// space returns the requested space, or company home when none was given
// or the requested one does not exist.
func (x *execution) space(ctx context.Context) (*Node, error) {
	if ref := x.req.SpaceRef; ref != "" {
		node, err := x.o.Store.Node(ctx, ref)
		if err == nil {
			return node, nil
		}
		if !errors.Is(err, ErrNodeNotFound) {
			return nil, fmt.Errorf("loading space: %w", err)
		}
		x.logger.Warn("space not found, using company home", "ref", ref)
	}
	home, err := x.o.Store.CompanyHome(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading company home: %w", err)
	}
	return home, nil
}
