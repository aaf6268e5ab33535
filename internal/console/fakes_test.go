package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const homeRef = "home"

type fakeStore struct {
	nodes  map[string]*Node
	paths  map[string]string
	denied map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes: map[string]*Node{
			homeRef:  {Ref: homeRef, Name: "Company Home", Type: "folder"},
			"sites":  {Ref: "sites", Name: "Sites", Type: "folder", Parent: homeRef},
			"doc":    {Ref: "doc", Name: "report.txt", Type: "content", Parent: "sites"},
			"secret": {Ref: "secret", Name: "Secret", Type: "folder", Parent: homeRef},
		},
		paths: map[string]string{
			homeRef:  "",
			"sites":  "/Company Home",
			"doc":    "/Company Home/Sites",
			"secret": "/Company Home",
		},
		denied: map[string]bool{"secret": true},
	}
}

func (s *fakeStore) Exists(_ context.Context, ref string) bool {
	_, ok := s.nodes[ref]
	return ok
}

func (s *fakeStore) Node(_ context.Context, ref string) (*Node, error) {
	n, ok := s.nodes[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNodeNotFound)
	}
	return n, nil
}

func (s *fakeStore) DisplayPath(_ context.Context, ref string) (string, error) {
	if s.denied[ref] {
		return "", ErrAccessDenied
	}
	return s.paths[ref], nil
}

func (s *fakeStore) CompanyHome(ctx context.Context) (*Node, error) {
	return s.Node(ctx, homeRef)
}

var errConflict = errors.New("conflict")

// retryTx retries work while it fails with errConflict.
type retryTx struct {
	maxAttempts int
	calls       int
	readOnly    bool
}

func (t *retryTx) RunInTransaction(ctx context.Context, readOnly bool, work func(context.Context) error) error {
	t.readOnly = readOnly
	for {
		t.calls++
		err := work(ctx)
		if errors.Is(err, errConflict) && t.calls < t.maxAttempts {
			continue
		}
		return err
	}
}

type principalKey struct{}

type fakeAuth struct {
	principal string
	err       error // returned instead of running work when set
}

func (a *fakeAuth) RunAs(ctx context.Context, principal string, work func(context.Context) error) error {
	a.principal = principal
	if a.err != nil {
		return a.err
	}
	return work(context.WithValue(ctx, principalKey{}, principal))
}

type scriptFunc func(ctx context.Context, src string, model map[string]any) error

func (f scriptFunc) Execute(ctx context.Context, src string, model map[string]any) error {
	return f(ctx, src, model)
}

// upperEngine unwraps string values to upper case.
type upperEngine struct {
	scriptFunc
}

func (upperEngine) UnwrapValue(v any) any {
	if s, ok := v.(string); ok {
		return "UNWRAPPED " + s
	}
	return v
}

type templateFunc func(tmpl string, model map[string]any) (string, error)

func (f templateFunc) Render(_ context.Context, tmpl string, model map[string]any) (string, error) {
	return f(tmpl, model)
}

func printer(model map[string]any) *Console {
	return model["jsconsole"].(*Console)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
