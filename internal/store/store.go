// Package store persists records in two bleve indices: the pending index,
// a work queue of records awaiting reconciliation, and the committed index,
// the reconciled view served to readers. Mutations are asynchronous tasks
// applied by one worker per index.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/query"
)

const (
	// IndexSuffix is the suffix for index directories
	IndexSuffix = ".bleve"

	// DefaultPageSize is the engine's maximum result window per request
	DefaultPageSize = 1000

	queueSize = 256
)

var (
	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrReadOnly is returned for mutations on a read-only store.
	ErrReadOnly = errors.New("store is read-only")

	// ErrUnknownIndex is returned for an index name the store does not hold.
	ErrUnknownIndex = errors.New("unknown index")
)

// IndexName identifies one of the two indices.
type IndexName string

const (
	Pending   IndexName = "pending"
	Committed IndexName = "committed"
)

// Indexes lists every index the store holds.
var Indexes = []IndexName{Pending, Committed}

type index struct {
	name    IndexName
	engine  bleve.Index
	queue   chan *Task
	stopped chan struct{}
}

// Store is the record store over the pending and committed indices.
type Store struct {
	indexes  map[IndexName]*index
	pageSize int
	readOnly bool

	tasks   *xsync.MapOf[uint64, *Task]
	nextUID atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates both indices under dir for reading and writing.
func Open(dir string, pageSize int) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	engines := make(map[IndexName]bleve.Index, len(Indexes))
	for _, name := range Indexes {
		engine, err := openForWrite(indexPath(dir, name))
		if err != nil {
			closeEngines(engines)
			return nil, fmt.Errorf("failed to open %s index: %w", name, err)
		}
		engines[name] = engine
	}

	return newStore(engines, pageSize, false), nil
}

// OpenReadOnly opens both existing indices under dir for reading only.
func OpenReadOnly(dir string, pageSize int) (*Store, error) {
	engines := make(map[IndexName]bleve.Index, len(Indexes))
	for _, name := range Indexes {
		engine, err := bleve.OpenUsing(indexPath(dir, name), map[string]interface{}{"read_only": true})
		if err != nil {
			closeEngines(engines)
			return nil, fmt.Errorf("failed to open %s index: %w", name, err)
		}
		engines[name] = engine
	}

	return newStore(engines, pageSize, true), nil
}

// NewMemOnly creates a store backed by in-memory indices.
func NewMemOnly(pageSize int) (*Store, error) {
	engines := make(map[IndexName]bleve.Index, len(Indexes))
	for _, name := range Indexes {
		engine, err := bleve.NewMemOnly(NewIndexMapping())
		if err != nil {
			closeEngines(engines)
			return nil, fmt.Errorf("failed to create %s index: %w", name, err)
		}
		engines[name] = engine
	}
	return newStore(engines, pageSize, false), nil
}

// IndexExists checks if both indices exist under dir.
func IndexExists(dir string) bool {
	for _, name := range Indexes {
		if _, err := os.Stat(indexPath(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func indexPath(dir string, name IndexName) string {
	return filepath.Join(dir, string(name)+IndexSuffix)
}

func openForWrite(path string) (bleve.Index, error) {
	// Try to open existing index
	engine, err := bleve.Open(path)
	if err == nil {
		return engine, nil
	}

	engine, err = bleve.New(path, NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return engine, nil
}

func closeEngines(engines map[IndexName]bleve.Index) {
	for _, e := range engines {
		_ = e.Close()
	}
}

func newStore(engines map[IndexName]bleve.Index, pageSize int, readOnly bool) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	s := &Store{
		indexes:  make(map[IndexName]*index, len(engines)),
		pageSize: pageSize,
		readOnly: readOnly,
		tasks:    xsync.NewMapOf[uint64, *Task](),
	}
	for name, engine := range engines {
		ix := &index{
			name:    name,
			engine:  engine,
			queue:   make(chan *Task, queueSize),
			stopped: make(chan struct{}),
		}
		s.indexes[name] = ix
		if readOnly {
			close(ix.stopped)
			continue
		}
		go s.worker(ix)
	}
	return s
}

// Close waits for queued tasks to apply and closes both indices.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if !s.readOnly {
		for _, ix := range s.indexes {
			close(ix.queue)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, ix := range s.indexes {
		<-ix.stopped
		if err := ix.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s index: %w", ix.name, err))
		}
	}
	return errors.Join(errs...)
}

// ReadOnly reports whether the store rejects mutations.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

func (s *Store) index(name IndexName) (*index, error) {
	ix, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, name)
	}
	return ix, nil
}

func (s *Store) enqueue(ctx context.Context, name IndexName, typ TaskType, apply func(bleve.Index) error) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.readOnly {
		return nil, ErrReadOnly
	}
	ix, err := s.index(name)
	if err != nil {
		return nil, err
	}

	t := newTask(s.nextUID.Add(1), name, typ, apply)
	s.tasks.Store(t.UID, t)

	select {
	case ix.queue <- t:
		return t, nil
	case <-ctx.Done():
		s.tasks.Delete(t.UID)
		return nil, ctx.Err()
	}
}

// Write sanitizes rec and upserts it into the index, keyed by its identity.
func (s *Store) Write(ctx context.Context, rec domain.Record, name IndexName) (*Task, error) {
	if err := rec.Stub().Validate(); err != nil {
		return nil, err
	}
	rec = domain.Sanitize(rec)
	doc, err := toDocument(rec)
	if err != nil {
		return nil, err
	}
	key := Key(rec.Stub())

	return s.enqueue(ctx, name, TaskDocumentAddition, func(engine bleve.Index) error {
		return engine.Index(key, doc)
	})
}

// SetDeleted writes rec to the committed index as a tombstone.
func (s *Store) SetDeleted(ctx context.Context, rec domain.Record) (*Task, error) {
	rec.IsDeleted = true
	return s.Write(ctx, rec, Committed)
}

// Delete physically removes every document with the identity of stub.
// Deleting an absent identity succeeds without effect. With wait set the
// call returns only once the deletion applied.
func (s *Store) Delete(ctx context.Context, stub domain.RecordStub, name IndexName, wait bool) (*Task, error) {
	q, err := query.Exact(stub, true)
	if err != nil {
		return nil, err
	}

	t, err := s.enqueue(ctx, name, TaskDocumentDeletion, func(engine bleve.Index) error {
		// Tasks run detached from the caller's context
		ids, err := s.searchIDs(context.Background(), engine, q)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		batch := engine.NewBatch()
		for _, id := range ids {
			batch.Delete(id)
		}
		return engine.Batch(batch)
	})
	if err != nil {
		return nil, err
	}

	if wait {
		if err := t.Wait(ctx); err != nil {
			return t, err
		}
	}
	return t, nil
}

// Lookup returns the first record in one index with the identity of stub.
func (s *Store) Lookup(ctx context.Context, name IndexName, stub domain.RecordStub, includeDeleted bool) (domain.Record, bool, error) {
	q, err := query.Exact(stub, includeDeleted)
	if err != nil {
		return domain.Record{}, false, err
	}
	res, err := s.Search(ctx, name, q, 1, 0)
	if err != nil {
		return domain.Record{}, false, err
	}
	if len(res.Hits) == 0 {
		return domain.Record{}, false, nil
	}
	return res.Hits[0], true, nil
}

// Get returns the committed record with the identity of stub, falling back
// to the pending index when includePending is set.
func (s *Store) Get(ctx context.Context, stub domain.RecordStub, includePending, includeDeleted bool) (domain.Record, bool, error) {
	rec, ok, err := s.Lookup(ctx, Committed, stub, includeDeleted)
	if err != nil || ok || !includePending {
		return rec, ok, err
	}
	return s.Lookup(ctx, Pending, stub, includeDeleted)
}

// SomePending returns up to size pending records.
func (s *Store) SomePending(ctx context.Context, size int) ([]domain.Record, error) {
	res, err := s.Search(ctx, Pending, query.Query{}, size, 0)
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}

// DocCount returns the number of documents in an index.
func (s *Store) DocCount(name IndexName) (uint64, error) {
	ix, err := s.index(name)
	if err != nil {
		return 0, err
	}
	return ix.engine.DocCount()
}
