package spider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sha1n/redx-indexer/internal/cloud"
	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/query"
	"github.com/sha1n/redx-indexer/internal/store"
)

// Seed ensures every root record is enqueued.
func (s *Spider) Seed(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, uri := range s.roots.URIs() {
		g.Go(func() error {
			return s.ensureEnqueued(gctx, uri)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to seed roots: %w", err)
	}
	slog.Info("Seeded roots", "count", s.roots.Len())
	return nil
}

// IndexURI fetches the record behind uri and enqueues it.
func (s *Spider) IndexURI(ctx context.Context, uri string) error {
	stub, err := domain.ParseRecordURI(uri)
	if err != nil {
		return err
	}
	rec, err := s.upstream.FetchRecord(ctx, stub)
	if errors.Is(err, cloud.ErrNotFound) {
		return fmt.Errorf("record %s not found: %w", uri, err)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", uri, err)
	}

	slog.Info("Indexing record", "record", rec)
	return s.enqueue(ctx, rec)
}

// Rescan enqueues every committed directory that is not already pending
// and returns how many were added.
func (s *Spider) Rescan(ctx context.Context) (int, error) {
	var committed, pending store.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		committed, err = s.store.Search(gctx, store.Committed, query.Directories(false), query.Unlimited, 0)
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = s.store.Search(gctx, store.Pending, query.Directories(true), query.Unlimited, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("failed to list directories: %w", err)
	}
	slog.Info("Rescanning directories", "committed", len(committed.Hits), "pending", len(pending.Hits))

	queued := make(map[string]struct{}, len(pending.Hits))
	for _, rec := range pending.Hits {
		queued[domain.RecordURI(rec.Stub(), false)] = struct{}{}
	}

	count := 0
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, rec := range committed.Hits {
		uri := domain.RecordURI(rec.Stub(), false)
		if _, ok := queued[uri]; ok {
			continue
		}
		queued[uri] = struct{}{}
		count++
		g.Go(func() error {
			return s.enqueue(gctx, rec)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteIgnoredDirectories removes the subtree of every committed directory
// matched by the ignore predicate and returns how many were removed.
func (s *Spider) DeleteIgnoredDirectories(ctx context.Context) (int, error) {
	res, err := s.store.Search(ctx, store.Committed, query.Directories(false), query.Unlimited, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list directories: %w", err)
	}

	b := newBatch()
	count := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, rec := range res.Hits {
		if !s.isIgnored(rec) {
			continue
		}
		count++
		g.Go(func() error {
			slog.Info("Deleting ignored directory", "record", rec)
			return s.cascadeIgnored(gctx, b, rec)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return count, nil
}
