// Package tmplengine renders console templates with text/template.
package tmplengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join":  strings.Join,
}

// Engine renders templates. The zero value is ready to use.
type Engine struct{}

// New returns an Engine.
func New() *Engine { return &Engine{} }

// Render parses tmpl and executes it against model. Missing keys render as
// their zero value.
func (e *Engine) Render(ctx context.Context, tmpl string, model map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := template.New("console").Option("missingkey=zero").Funcs(funcs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, model); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return b.String(), nil
}
