package repo

import (
	"context"

	"github.com/deixis/scriptconsole/internal/console"
)

// Session is the repository as scripts see it: every call runs with the
// context of the attempt that created the session, so writes join its
// transaction and reads honor its principal.
type Session struct {
	ctx  context.Context
	repo *Repository
}

// Session binds r to ctx.
func (r *Repository) Session(ctx context.Context) *Session {
	return &Session{ctx: ctx, repo: r}
}

// Bindings returns the script model entries contributed by the repository.
func (r *Repository) Bindings(ctx context.Context) map[string]any {
	return map[string]any{"repo": r.Session(ctx)}
}

func (s *Session) Whoami() string { return Principal(s.ctx) }

func (s *Session) Node(ref string) (*console.Node, error) { return s.repo.Node(s.ctx, ref) }

func (s *Session) Exists(ref string) bool { return s.repo.Exists(s.ctx, ref) }

func (s *Session) Children(ref string) ([]*console.Node, error) { return s.repo.Children(s.ctx, ref) }

func (s *Session) ChildByName(parent, name string) (*console.Node, error) {
	return s.repo.ChildByName(s.ctx, parent, name)
}

func (s *Session) CreateFolder(parent, name string) (*console.Node, error) {
	return s.repo.CreateNode(s.ctx, parent, name, TypeFolder)
}

func (s *Session) CreateContent(parent, name string) (*console.Node, error) {
	return s.repo.CreateNode(s.ctx, parent, name, TypeContent)
}

func (s *Session) SetProperty(ref, key string, value any) error {
	return s.repo.SetProperty(s.ctx, ref, key, value)
}

func (s *Session) Remove(ref string) error { return s.repo.Remove(s.ctx, ref) }
