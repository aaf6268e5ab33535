// Package repo is an in-memory object graph of folders and content nodes.
// It implements the object store, authentication, transaction and dump
// services the console runs scripts against.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deixis/scriptconsole/internal/console"
	"github.com/deixis/scriptconsole/internal/txn"
)

// Built-in principals. Admin can read every node.
const (
	Admin = "admin"
	Guest = "guest"
)

// Node types.
const (
	TypeFolder  = "cm:folder"
	TypeContent = "cm:content"
)

var (
	ErrUnknownPrincipal = errors.New("unknown principal")
	ErrDuplicateName    = errors.New("duplicate child name")
	ErrRootNode         = errors.New("company home cannot be removed")
)

// record is the stored form of a node. Records are never mutated once
// stored; writers replace them.
type record struct {
	console.Node
	Readers  []string // empty: readable by everyone
	Created  time.Time
	Modified time.Time
	Version  int
}

func (r *record) clone() *record {
	c := *r
	c.Properties = maps.Clone(r.Properties)
	c.Readers = slices.Clone(r.Readers)
	return &c
}

func (r *record) node() *console.Node {
	n := r.Node
	n.Properties = maps.Clone(r.Properties)
	return &n
}

// Repository holds the graph. It is safe for concurrent use.
type Repository struct {
	mu      sync.RWMutex
	nodes   map[string]*record
	users   map[string]bool
	version uint64
	home    string

	now    func() time.Time
	logger *slog.Logger
}

// New returns a repository holding company home and the standard
// top-level folders.
func New(logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{
		nodes:  make(map[string]*record),
		users:  map[string]bool{Admin: true, Guest: true},
		now:    time.Now,
		logger: logger,
	}
	home := r.newRecord("", "Company Home", TypeFolder)
	r.home = home.Ref
	r.nodes[home.Ref] = home
	for _, name := range []string{"Data Dictionary", "Guest Home", "Sites", "User Homes"} {
		rec := r.newRecord(home.Ref, name, TypeFolder)
		r.nodes[rec.Ref] = rec
	}
	return r
}

func (r *Repository) newRecord(parent, name, typ string) *record {
	now := r.now()
	return &record{
		Node: console.Node{
			Ref:        "workspace://SpacesStore/" + uuid.New().String(),
			Name:       name,
			Type:       typ,
			Parent:     parent,
			Properties: map[string]any{},
		},
		Created:  now,
		Modified: now,
		Version:  1,
	}
}

// AddUser registers a principal scripts may run as.
func (r *Repository) AddUser(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[name] = true
}

type principalKey struct{}

// WithPrincipal returns ctx acting as principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// Principal returns the principal ctx acts as. Callers of the console are
// already authorized, so the default is Admin.
func Principal(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(string); ok {
		return p
	}
	return Admin
}

// RunAs runs work as principal.
func (r *Repository) RunAs(ctx context.Context, principal string, work func(ctx context.Context) error) error {
	r.mu.RLock()
	known := r.users[principal]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownPrincipal, principal)
	}
	r.logger.Debug("running as", "principal", principal)
	return work(WithPrincipal(ctx, principal))
}

func canRead(ctx context.Context, rec *record) bool {
	p := Principal(ctx)
	return p == Admin || len(rec.Readers) == 0 || slices.Contains(rec.Readers, p)
}

// lookup returns the record of ref as seen by ctx's transaction.
func (r *Repository) lookup(ctx context.Context, ref string) (*record, bool) {
	if t := r.txOf(ctx); t != nil {
		if rec, ok := t.writes[ref]; ok {
			return rec, rec != nil
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.nodes[ref]
	return rec, ok
}

func (r *Repository) readable(ctx context.Context, ref string) (*record, error) {
	rec, ok := r.lookup(ctx, ref)
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, console.ErrNodeNotFound)
	}
	if !canRead(ctx, rec) {
		return nil, fmt.Errorf("%s: %w", ref, console.ErrAccessDenied)
	}
	return rec, nil
}

// store writes rec, or removes ref when rec is nil, through ctx's
// transaction when there is one.
func (r *Repository) store(ctx context.Context, ref string, rec *record) error {
	if t := r.txOf(ctx); t != nil {
		if t.readOnly {
			return txn.ErrReadOnly
		}
		t.writes[ref] = rec
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec == nil {
		delete(r.nodes, ref)
	} else {
		r.nodes[ref] = rec
	}
	r.version++
	return nil
}

// children returns the child records of ref as seen by ctx, sorted by name.
func (r *Repository) children(ctx context.Context, ref string) []*record {
	merged := make(map[string]*record)
	r.mu.RLock()
	for k, rec := range r.nodes {
		if rec.Parent == ref {
			merged[k] = rec
		}
	}
	r.mu.RUnlock()
	if t := r.txOf(ctx); t != nil {
		for k, rec := range t.writes {
			switch {
			case rec == nil:
				delete(merged, k)
			case rec.Parent == ref:
				merged[k] = rec
			default:
				delete(merged, k)
			}
		}
	}
	out := slices.Collect(maps.Values(merged))
	slices.SortFunc(out, func(a, b *record) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Exists reports whether ref names a node.
func (r *Repository) Exists(ctx context.Context, ref string) bool {
	_, ok := r.lookup(ctx, ref)
	return ok
}

// Node returns a copy of the node behind ref.
func (r *Repository) Node(ctx context.Context, ref string) (*console.Node, error) {
	rec, err := r.readable(ctx, ref)
	if err != nil {
		return nil, err
	}
	return rec.node(), nil
}

// CompanyHome returns the root folder.
func (r *Repository) CompanyHome(ctx context.Context) (*console.Node, error) {
	return r.Node(ctx, r.home)
}

// DisplayPath returns the names of ref's ancestors joined by "/", or ""
// for company home itself.
func (r *Repository) DisplayPath(ctx context.Context, ref string) (string, error) {
	rec, ok := r.lookup(ctx, ref)
	if !ok {
		return "", fmt.Errorf("%s: %w", ref, console.ErrNodeNotFound)
	}
	var names []string
	for parent := rec.Parent; parent != ""; {
		p, err := r.readable(ctx, parent)
		if err != nil {
			return "", err
		}
		names = append(names, p.Name)
		parent = p.Parent
	}
	if len(names) == 0 {
		return "", nil
	}
	slices.Reverse(names)
	return "/" + strings.Join(names, "/"), nil
}

// Children lists the readable children of ref.
func (r *Repository) Children(ctx context.Context, ref string) ([]*console.Node, error) {
	if _, err := r.readable(ctx, ref); err != nil {
		return nil, err
	}
	var out []*console.Node
	for _, rec := range r.children(ctx, ref) {
		if canRead(ctx, rec) {
			out = append(out, rec.node())
		}
	}
	return out, nil
}

// ChildByName returns the child of parent called name.
func (r *Repository) ChildByName(ctx context.Context, parent, name string) (*console.Node, error) {
	if _, err := r.readable(ctx, parent); err != nil {
		return nil, err
	}
	for _, rec := range r.children(ctx, parent) {
		if rec.Name == name && canRead(ctx, rec) {
			return rec.node(), nil
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", parent, name, console.ErrNodeNotFound)
}

// CreateNode adds a node named name under parent.
func (r *Repository) CreateNode(ctx context.Context, parent, name, typ string) (*console.Node, error) {
	if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid node name %q", name)
	}
	if typ == "" {
		typ = TypeContent
	}
	p, err := r.readable(ctx, parent)
	if err != nil {
		return nil, err
	}
	if p.Type != TypeFolder {
		return nil, fmt.Errorf("%s is not a folder", parent)
	}
	for _, sibling := range r.children(ctx, parent) {
		if sibling.Name == name {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	rec := r.newRecord(parent, name, typ)
	if err := r.store(ctx, rec.Ref, rec); err != nil {
		return nil, err
	}
	return rec.node(), nil
}

// SetProperty sets one property of ref.
func (r *Repository) SetProperty(ctx context.Context, ref, key string, value any) error {
	rec, err := r.readable(ctx, ref)
	if err != nil {
		return err
	}
	rec = rec.clone()
	rec.Properties[key] = value
	rec.Modified = r.now()
	rec.Version++
	return r.store(ctx, ref, rec)
}

// SetReaders restricts reading ref to readers. No readers lifts the
// restriction.
func (r *Repository) SetReaders(ctx context.Context, ref string, readers ...string) error {
	rec, ok := r.lookup(ctx, ref)
	if !ok {
		return fmt.Errorf("%s: %w", ref, console.ErrNodeNotFound)
	}
	rec = rec.clone()
	rec.Readers = slices.Clone(readers)
	rec.Version++
	return r.store(ctx, ref, rec)
}

// Remove deletes ref and everything below it.
func (r *Repository) Remove(ctx context.Context, ref string) error {
	if ref == r.home {
		return ErrRootNode
	}
	if _, err := r.readable(ctx, ref); err != nil {
		return err
	}
	for _, child := range r.children(ctx, ref) {
		if err := r.Remove(ctx, child.Ref); err != nil {
			return err
		}
	}
	return r.store(ctx, ref, nil)
}
