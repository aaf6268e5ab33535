package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deixis/scriptconsole/internal/console"
)

type dumpView struct {
	NodeRef     string         `json:"nodeRef"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Path        string         `json:"displayPath"`
	Parent      string         `json:"parent,omitempty"`
	Properties  map[string]any `json:"properties"`
	Children    int            `json:"childCount"`
	Permissions []string       `json:"readers,omitempty"`
	Version     int            `json:"version"`
	Created     time.Time      `json:"created"`
	Modified    time.Time      `json:"modified"`
}

// Dump describes the node behind ref as a JSON document.
func (r *Repository) Dump(ctx context.Context, ref string) (console.DumpRecord, error) {
	rec, err := r.readable(ctx, ref)
	if err != nil {
		return console.DumpRecord{}, err
	}
	path, err := console.SpacePath(ctx, r, rec.node())
	if err != nil {
		return console.DumpRecord{}, err
	}
	view := dumpView{
		NodeRef:     rec.Ref,
		Name:        rec.Name,
		Type:        rec.Type,
		Path:        path,
		Parent:      rec.Parent,
		Properties:  rec.Properties,
		Children:    len(r.children(ctx, ref)),
		Permissions: rec.Readers,
		Version:     rec.Version,
		Created:     rec.Created,
		Modified:    rec.Modified,
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return console.DumpRecord{}, fmt.Errorf("dumping %s: %w", ref, err)
	}
	return console.DumpRecord{NodeRef: rec.Ref, JSON: string(data)}, nil
}
