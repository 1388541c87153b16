// Package origin traces how a record is reachable from the root records
// through parent directories and incoming links.
package origin

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/sha1n/redx-indexer/internal/config"
	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/query"
	"github.com/sha1n/redx-indexer/internal/store"
)

// ErrInvalidDepth indicates a maximum depth above config.MaxOriginDepth.
var ErrInvalidDepth = errors.New("invalid origin depth")

// Index is the read side of the record store.
type Index interface {
	Get(ctx context.Context, stub domain.RecordStub, includePending, includeDeleted bool) (domain.Record, bool, error)
	Search(ctx context.Context, name store.IndexName, q query.Query, size, offset int) (store.Result, error)
}

// Node is one record of an origin tree. Flagged nodes are leaves.
type Node struct {
	RecordURI  string            `json:"recordUri"`
	OwnerID    string            `json:"ownerId"`
	OwnerName  string            `json:"ownerName,omitempty"`
	ID         string            `json:"id,omitempty"`
	Path       string            `json:"path,omitempty"`
	Name       string            `json:"name,omitempty"`
	RecordType domain.RecordType `json:"recordType,omitempty"`
	Parent     *Node             `json:"parent,omitempty"`
	LinkedFrom []*Node           `json:"linkedFrom,omitempty"`

	Circular         bool `json:"circular,omitempty"`
	Root             bool `json:"root,omitempty"`
	NotFound         bool `json:"notFound,omitempty"`
	MaxDepthExceeded bool `json:"maxDepthExceeded,omitempty"`
}

func newNode(rec domain.Record) *Node {
	return &Node{
		RecordURI:  domain.RecordURI(rec.Stub(), false),
		OwnerID:    rec.OwnerID,
		OwnerName:  rec.OwnerName,
		ID:         rec.ID,
		Path:       rec.Path,
		Name:       rec.Name,
		RecordType: rec.RecordType,
	}
}

func stubRecord(stub domain.RecordStub) domain.Record {
	return domain.Record{OwnerID: stub.OwnerID, ID: stub.ID, Path: stub.Path, Name: stub.Name}
}

// Resolver builds origin trees from the committed index.
type Resolver struct {
	index        Index
	roots        []domain.RecordStub
	defaultDepth int
}

// New creates a resolver. defaultDepth applies when Resolve is called with
// a negative depth.
func New(index Index, roots []domain.RecordStub, defaultDepth int) *Resolver {
	return &Resolver{
		index:        index,
		roots:        roots,
		defaultDepth: defaultDepth,
	}
}

// walk is the state of one Resolve call.
type walk struct {
	*Resolver
	maxDepth int
	entries  []rootEntry
}

// rootEntry is a configured root and its committed copy, if any.
type rootEntry struct {
	stub      domain.RecordStub
	committed domain.Record
	found     bool
}

func (e rootEntry) record() domain.Record {
	if e.found {
		return e.committed
	}
	return stubRecord(e.stub)
}

// Resolve returns the origin tree of stub, following at most maxDepth
// ancestors along any branch. A negative maxDepth selects the default.
func (r *Resolver) Resolve(ctx context.Context, stub domain.RecordStub, maxDepth int) (*Node, error) {
	if maxDepth < 0 {
		maxDepth = r.defaultDepth
	}
	if maxDepth > config.MaxOriginDepth {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidDepth, maxDepth, config.MaxOriginDepth)
	}
	if err := stub.Validate(); err != nil {
		return nil, err
	}

	entries, err := r.rootEntries(ctx)
	if err != nil {
		return nil, err
	}
	w := &walk{Resolver: r, maxDepth: maxDepth, entries: entries}
	return w.resolve(ctx, stub, nil)
}

// ResolveURI parses uri and resolves it.
func (r *Resolver) ResolveURI(ctx context.Context, uri string, maxDepth int) (*Node, error) {
	stub, err := domain.ParseRecordURI(uri)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, stub, maxDepth)
}

// rootEntries loads the committed copies of the configured roots.
func (r *Resolver) rootEntries(ctx context.Context) ([]rootEntry, error) {
	entries := make([]rootEntry, 0, len(r.roots))
	for _, stub := range r.roots {
		rec, ok, err := r.index.Get(ctx, stub, false, true)
		if err != nil {
			return nil, fmt.Errorf("failed to load root %s: %w", domain.RecordURI(stub, false), err)
		}
		entries = append(entries, rootEntry{stub: stub, committed: rec, found: ok})
	}
	return entries, nil
}

func find(records []domain.Record, stub domain.RecordStub) (domain.Record, bool) {
	for _, rec := range records {
		if domain.SameIdentity(rec.Stub(), stub) {
			return rec, true
		}
	}
	return domain.Record{}, false
}

// root returns the root matching stub by its configured or committed identity.
func (w *walk) root(stub domain.RecordStub) (domain.Record, bool) {
	for _, e := range w.entries {
		if domain.SameIdentity(e.stub, stub) || (e.found && domain.SameIdentity(e.committed.Stub(), stub)) {
			return e.record(), true
		}
	}
	return domain.Record{}, false
}

func (w *walk) resolve(ctx context.Context, stub domain.RecordStub, stack []domain.Record) (*Node, error) {
	if rec, ok := find(stack, stub); ok {
		n := newNode(rec)
		n.Circular = true
		return n, nil
	}
	if rec, ok := w.root(stub); ok {
		n := newNode(rec)
		n.Root = true
		return n, nil
	}
	if len(stack) >= w.maxDepth {
		n := newNode(stubRecord(stub))
		n.MaxDepthExceeded = true
		return n, nil
	}

	rec, ok, err := w.index.Get(ctx, stub, false, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		n := newNode(stubRecord(stub))
		n.NotFound = true
		return n, nil
	}

	if found, ok := find(stack, rec.Stub()); ok {
		n := newNode(found)
		n.Circular = true
		return n, nil
	}
	if found, ok := w.root(rec.Stub()); ok {
		n := newNode(found)
		n.Root = true
		return n, nil
	}

	q, err := query.IncomingLinks(rec.Stub(), false)
	if err != nil {
		return nil, err
	}
	links, err := w.index.Search(ctx, store.Committed, q, query.Unlimited, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find links to %s: %w", rec, err)
	}

	next := append(slices.Clip(stack), rec)

	var targets []domain.RecordStub
	parent, hasParent := domain.ParentDirectoryStub(rec.Stub())
	if hasParent {
		targets = append(targets, parent)
	}
	for _, l := range links.Hits {
		if p, ok := domain.ParentDirectoryStub(l.Stub()); ok {
			targets = append(targets, p)
		}
	}

	results := make([]*Node, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			n, err := w.resolve(gctx, target, next)
			results[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := newNode(rec)
	if hasParent {
		n.Parent, results = results[0], results[1:]
	}
	for _, child := range results {
		if child != nil {
			n.LinkedFrom = append(n.LinkedFrom, child)
		}
	}
	return n, nil
}
