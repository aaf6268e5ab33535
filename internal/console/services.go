package console

import "context"

// Node is a repository object as seen by scripts and results.
type Node struct {
	Ref        string         `json:"ref"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Parent     string         `json:"parent,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ObjectStore looks up repository objects.
type ObjectStore interface {
	Exists(ctx context.Context, ref string) bool
	Node(ctx context.Context, ref string) (*Node, error)

	// DisplayPath returns the display path of the folder holding ref,
	// empty for a top-level node. It fails with ErrAccessDenied when an
	// ancestor is not readable.
	DisplayPath(ctx context.Context, ref string) (string, error)

	// CompanyHome returns the default space.
	CompanyHome(ctx context.Context) (*Node, error)
}

// TransactionManager runs work as a unit of work, retrying it on
// transient conflicts. work may therefore be invoked more than once.
type TransactionManager interface {
	RunInTransaction(ctx context.Context, readOnly bool, work func(ctx context.Context) error) error
}

// Authenticator runs work under another principal's identity.
type Authenticator interface {
	RunAs(ctx context.Context, principal string, work func(ctx context.Context) error) error
}

// ScriptEngine executes a script against a model. Entries the script puts
// into model["model"] are handed to the template.
type ScriptEngine interface {
	Execute(ctx context.Context, source string, model map[string]any) error
}

// ValueUnwrapper is implemented by script engines whose values need
// converting before a template can use them.
type ValueUnwrapper interface {
	UnwrapValue(v any) any
}

// TemplateEngine renders a template against a model.
type TemplateEngine interface {
	Render(ctx context.Context, template string, model map[string]any) (string, error)
}

// DumpFunc describes the object behind ref.
type DumpFunc func(ctx context.Context, ref string) (DumpRecord, error)
