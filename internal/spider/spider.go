// Package spider keeps the committed index consistent with the upstream
// record store by draining the pending index through per-type reconcilers.
package spider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sha1n/redx-indexer/internal/cloud"
	"github.com/sha1n/redx-indexer/internal/config"
	"github.com/sha1n/redx-indexer/internal/describe"
	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/roots"
	"github.com/sha1n/redx-indexer/internal/store"
)

// NoIndexMarker is the name of the child that excludes a directory subtree
// from the index.
const NoIndexMarker = ".noindex"

// IgnorePredicate decides whether a record is excluded from the index.
type IgnorePredicate interface {
	IsIgnored(stub domain.RecordStub) bool
}

type noIgnore struct{}

func (noIgnore) IsIgnored(domain.RecordStub) bool { return false }

// Deps are the collaborators of a Spider. Ignore, Roots and State are optional.
type Deps struct {
	Store     *store.Store
	Upstream  cloud.Upstream
	Describer describe.Describer
	Ignore    IgnorePredicate
	Roots     *roots.Set
	State     *State

	// StatePath is where State is saved after every batch. Empty disables saving.
	StatePath string
}

// Spider reconciles pending records into the committed index.
type Spider struct {
	store     *store.Store
	upstream  cloud.Upstream
	describer describe.Describer
	ignore    IgnorePredicate
	roots     *roots.Set
	state     *State
	statePath string

	concurrency int
	batchSize   int
	backoff     Backoff
}

// New creates a spider.
func New(deps Deps, settings config.SpiderSettings) *Spider {
	s := &Spider{
		store:       deps.Store,
		upstream:    deps.Upstream,
		describer:   deps.Describer,
		ignore:      deps.Ignore,
		roots:       deps.Roots,
		state:       deps.State,
		statePath:   deps.StatePath,
		concurrency: max(settings.Concurrency, 1),
		batchSize:   max(settings.BatchSize, 1),
		backoff: Backoff{
			Attempts: settings.RetryAttempts,
			Delay:    settings.RetryDelay,
			Factor:   settings.RetryFactor,
		},
	}
	if s.ignore == nil {
		s.ignore = noIgnore{}
	}
	if s.describer == nil {
		s.describer = describe.New()
	}
	if s.roots == nil {
		s.roots, _ = roots.New()
	}
	if s.state == nil {
		s.state = NewState()
	}
	return s
}

// State returns the run state of the spider.
func (s *Spider) State() *State {
	return s.state
}

// Command names a spider run.
type Command string

const (
	CommandDrain         Command = "drain"
	CommandIndex         Command = "index"
	CommandRescan        Command = "rescan"
	CommandDeleteIgnored Command = "delete-ignored"
)

// Run executes a command and records it in the run state. Every command
// except CommandDeleteIgnored seeds the roots first and drains the pending
// queue last. CommandIndex takes the record URI as arg.
func (s *Spider) Run(ctx context.Context, cmd Command, arg string) (err error) {
	runID := s.state.Begin(string(cmd))
	slog.Info("Spider run started", "run_id", runID, "command", cmd)
	defer func() {
		s.state.Finish(err)
		s.saveState()
		if err != nil {
			slog.Error("Spider run failed", "run_id", runID, "error", err)
			return
		}
		run := s.state.Snapshot()
		slog.Info("Spider run finished", "run_id", runID, "processed", run.Processed, "deleted", run.Deleted, "batches", run.Batches)
	}()

	if cmd == CommandDeleteIgnored {
		n, err := s.DeleteIgnoredDirectories(ctx)
		if err != nil {
			return err
		}
		slog.Info("Deleted ignored directories", "count", n)
		return nil
	}

	if err := s.Seed(ctx); err != nil {
		return err
	}

	switch cmd {
	case CommandDrain:
	case CommandIndex:
		if err := s.IndexURI(ctx, arg); err != nil {
			return err
		}
	case CommandRescan:
		n, err := s.Rescan(ctx)
		if err != nil {
			return err
		}
		slog.Info("Rescan enqueued directories", "count", n)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}

	return s.Drain(ctx)
}

func (s *Spider) saveState() {
	if s.statePath == "" {
		return
	}
	if err := s.state.Save(s.statePath); err != nil {
		slog.Warn("Failed to save spider state", "path", s.statePath, "error", err)
	}
}

// batch is the scope of one drain iteration. It tracks the identities whose
// pending entries were removed during the iteration.
type batch struct {
	deleted *xsync.MapOf[string, struct{}]
}

func newBatch() *batch {
	return &batch{deleted: xsync.NewMapOf[string, struct{}]()}
}

// markDeleted records the identity and reports whether it was new.
func (b *batch) markDeleted(stub domain.RecordStub) bool {
	_, loaded := b.deleted.LoadOrStore(store.Key(stub), struct{}{})
	return !loaded
}

func (b *batch) unmarkDeleted(stub domain.RecordStub) {
	b.deleted.Delete(store.Key(stub))
}

func (b *batch) isDeleted(stub domain.RecordStub) bool {
	_, ok := b.deleted.Load(store.Key(stub))
	return ok
}

func (s *Spider) isIgnored(rec domain.Record) bool {
	return s.ignore.IsIgnored(rec.Stub())
}

// commit writes rec to the committed index and waits for it to apply.
func (s *Spider) commit(ctx context.Context, rec domain.Record) error {
	task, err := s.store.Write(ctx, rec, store.Committed)
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", rec, err)
	}
	return task.Wait(ctx)
}

// tombstone marks rec deleted in the committed index.
func (s *Spider) tombstone(ctx context.Context, rec domain.Record) error {
	task, err := s.store.SetDeleted(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", rec, err)
	}
	if err := task.Wait(ctx); err != nil {
		return err
	}
	s.state.AddDeleted()
	return nil
}

// enqueue writes rec to the pending index and waits for it to apply.
func (s *Spider) enqueue(ctx context.Context, rec domain.Record) error {
	task, err := s.store.Write(ctx, rec, store.Pending)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", rec, err)
	}
	return task.Wait(ctx)
}

// deletePending removes the pending entries of rec once per batch. It
// reports false when an earlier deletion in the batch already removed them.
func (s *Spider) deletePending(ctx context.Context, b *batch, rec domain.Record) (bool, error) {
	if !b.markDeleted(rec.Stub()) {
		slog.Debug("Pending record already deleted", "record", rec)
		return false, nil
	}
	if _, err := s.store.Delete(ctx, rec.Stub(), store.Pending, true); err != nil {
		b.unmarkDeleted(rec.Stub())
		return false, fmt.Errorf("failed to delete pending %s: %w", rec, err)
	}
	return true, nil
}

// ensureEnqueued makes the record behind uri pending unless it is already
// pending, missing upstream, ignored or committed and current.
func (s *Spider) ensureEnqueued(ctx context.Context, uri string) error {
	stub, err := domain.ParseRecordURI(uri)
	if err != nil {
		slog.Debug("Skipping non-record URI", "uri", uri)
		return nil
	}

	if _, ok, err := s.store.Lookup(ctx, store.Pending, stub, false); err != nil || ok {
		return err
	}
	if s.ignore.IsIgnored(stub) {
		return nil
	}

	rec, err := s.upstream.FetchRecord(ctx, stub)
	if errors.Is(err, cloud.ErrNotFound) {
		slog.Info("Linked record not found", "uri", uri)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	if s.isIgnored(rec) {
		return nil
	}

	if rec.ID != "" && stub.ID == "" {
		if _, ok, err := s.store.Lookup(ctx, store.Pending, rec.Stub(), false); err != nil || ok {
			return err
		}
	}
	committed, ok, err := s.store.Lookup(ctx, store.Committed, rec.Stub(), false)
	if err != nil {
		return err
	}
	if ok && !rec.IsNewerThan(committed) {
		return nil
	}

	slog.Info("Enqueued record", "record", rec)
	return s.enqueue(ctx, rec)
}
