package spider

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/sha1n/redx-indexer/internal/cloud"
	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/query"
	"github.com/sha1n/redx-indexer/internal/store"
)

// handler reconciles one record and returns its outcome.
type handler func(ctx context.Context, b *batch, rec domain.Record) (string, error)

func (s *Spider) handlerFor(t domain.RecordType) handler {
	switch t {
	case domain.RecordTypeDirectory:
		return s.handleDirectory
	case domain.RecordTypeLink:
		return s.handleLink
	case domain.RecordTypeObject:
		return s.handleObject
	case domain.RecordTypeWorld:
		return s.handleWorld
	default:
		return s.handleOther
	}
}

// reconcile dispatches rec to the handler of its record type.
func (s *Spider) reconcile(ctx context.Context, b *batch, rec domain.Record) (string, error) {
	return s.handlerFor(rec.RecordType)(ctx, b, rec)
}

func (s *Spider) handleDirectory(ctx context.Context, b *batch, rec domain.Record) (string, error) {
	if s.isIgnored(rec) {
		slog.Info("Directory ignored", "record", rec)
		return outcomeDeleted, s.cascadeIgnored(ctx, b, rec)
	}

	if err := s.commit(ctx, rec); err != nil {
		return "", err
	}

	var upstream, committed, pending []domain.Record
	gone := false
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		children, err := s.upstream.FetchDirectoryChildren(gctx, rec)
		if cloud.IsPermanent(err) {
			slog.Info("Directory gone upstream", "record", rec, "error", err)
			gone = true
			return nil
		}
		upstream = children
		return err
	})
	g.Go(func() error {
		var err error
		committed, err = s.children(gctx, store.Committed, rec, false)
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = s.children(gctx, store.Pending, rec, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	if gone {
		return outcomeDeleted, s.cascadeDeleted(ctx, b, rec, committed, pending)
	}
	if slices.ContainsFunc(upstream, func(c domain.Record) bool { return c.Name == NoIndexMarker }) {
		slog.Info("Directory marked not indexed", "record", rec)
		return outcomeDeleted, s.cascadeIgnored(ctx, b, rec)
	}
	return outcomeCommitted, s.diffChildren(ctx, b, rec, upstream, committed, pending)
}

// children lists the non-deleted records inside dir. A deep listing covers
// the whole subtree.
func (s *Spider) children(ctx context.Context, name store.IndexName, dir domain.Record, deep bool) ([]domain.Record, error) {
	q, err := query.Children(dir.Stub(), deep, false)
	if err != nil {
		return nil, err
	}
	res, err := s.store.Search(ctx, name, q, query.Unlimited, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s children of %s: %w", name, dir, err)
	}
	return res.Hits, nil
}

func byKey(recs []domain.Record) map[string]domain.Record {
	m := make(map[string]domain.Record, len(recs))
	for _, r := range recs {
		m[store.Key(r.Stub())] = r
	}
	return m
}

// diffChildren applies the difference between the upstream listing of dir
// and its local committed and pending children.
func (s *Spider) diffChildren(ctx context.Context, b *batch, dir domain.Record, upstream, committed, pending []domain.Record) error {
	upstreamByKey := byKey(upstream)
	committedByKey := byKey(committed)
	pendingByKey := byKey(pending)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, child := range upstream {
		key := store.Key(child.Stub())
		if _, ok := pendingByKey[key]; ok {
			continue
		}
		if local, ok := committedByKey[key]; ok && !child.IsNewerThan(local) {
			continue
		}
		if s.isIgnored(child) {
			continue
		}
		g.Go(func() error {
			slog.Info("Directory child added or updated", "directory", dir, "record", child)
			return s.enqueue(gctx, child)
		})
	}

	for _, child := range committed {
		if _, ok := upstreamByKey[store.Key(child.Stub())]; ok {
			continue
		}
		g.Go(func() error {
			slog.Info("Directory child removed", "directory", dir, "record", child)
			return s.tombstone(gctx, child)
		})
	}

	for _, child := range pending {
		if _, ok := upstreamByKey[store.Key(child.Stub())]; ok {
			continue
		}
		g.Go(func() error {
			slog.Info("Directory pending child removed", "directory", dir, "record", child)
			_, err := s.deletePending(gctx, b, child)
			return err
		})
	}

	return g.Wait()
}

// cascadeDeleted removes the known children of a directory that no longer
// exists upstream, then the directory itself. Pending child directories
// are left to reconcile themselves since they may have moved.
func (s *Spider) cascadeDeleted(ctx context.Context, b *batch, dir domain.Record, committed, pending []domain.Record) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, child := range committed {
		g.Go(func() error {
			slog.Info("Deleted directory child removed", "directory", dir, "record", child)
			return s.tombstone(gctx, child)
		})
	}
	for _, child := range pending {
		if child.RecordType == domain.RecordTypeDirectory {
			continue
		}
		g.Go(func() error {
			slog.Info("Deleted directory pending child removed", "directory", dir, "record", child)
			_, err := s.deletePending(gctx, b, child)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.tombstone(ctx, dir)
}

// cascadeIgnored removes the whole subtree of an ignored directory, then
// the directory itself.
func (s *Spider) cascadeIgnored(ctx context.Context, b *batch, dir domain.Record) error {
	var committed, pending []domain.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		committed, err = s.children(gctx, store.Committed, dir, true)
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = s.children(gctx, store.Pending, dir, true)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, child := range committed {
		g.Go(func() error {
			slog.Info("Ignored directory child removed", "directory", dir, "record", child)
			if err := s.tombstone(gctx, child); err != nil {
				return err
			}
			if child.RecordType == domain.RecordTypeLink {
				return s.checkIgnoredLink(gctx, child)
			}
			return nil
		})
	}
	for _, child := range pending {
		g.Go(func() error {
			slog.Info("Ignored directory pending child removed", "directory", dir, "record", child)
			_, err := s.deletePending(gctx, b, child)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.tombstone(ctx, dir)
}

// checkIgnoredLink reports links inside an ignored subtree whose target is
// not ignored itself.
func (s *Spider) checkIgnoredLink(ctx context.Context, link domain.Record) error {
	stub, err := domain.ParseRecordURI(link.AssetURI)
	if err != nil {
		return nil
	}
	target, ok, err := s.store.Get(ctx, stub, true, true)
	if err != nil {
		return err
	}
	if ok {
		stub = target.Stub()
	}
	if !s.ignore.IsIgnored(stub) {
		slog.Warn("Ignored link targets a record that is not ignored", "link", link, "target", link.AssetURI)
	}
	return nil
}

func (s *Spider) handleLink(ctx context.Context, _ *batch, rec domain.Record) (string, error) {
	if s.isIgnored(rec) {
		return outcomeDeleted, s.tombstone(ctx, rec)
	}
	if err := s.ensureEnqueued(ctx, rec.AssetURI); err != nil {
		return "", err
	}
	return outcomeCommitted, s.commit(ctx, rec)
}

func (s *Spider) handleObject(ctx context.Context, _ *batch, rec domain.Record) (string, error) {
	if s.isIgnored(rec) {
		return outcomeDeleted, s.tombstone(ctx, rec)
	}

	d := s.describer.DescribeRecord(rec)
	if d.WorldURI != "" {
		slog.Info("Object references a world", "record", rec, "world", d.WorldURI)
		if err := s.ensureEnqueued(ctx, d.WorldURI); err != nil {
			return "", err
		}
	}

	if d.ObjectType != "" {
		rec.Enrich(d)
	} else {
		data, err := s.readContent(ctx, rec)
		if err != nil {
			return "", err
		}
		if data != nil {
			desc, err := s.describer.DescribeObject(data)
			if err != nil {
				slog.Warn("Failed to describe object", "record", rec, "error", err)
			} else {
				rec.Enrich(desc)
			}
		}
	}

	return outcomeCommitted, s.commit(ctx, rec)
}

func (s *Spider) handleWorld(ctx context.Context, _ *batch, rec domain.Record) (string, error) {
	if s.isIgnored(rec) {
		return outcomeDeleted, s.tombstone(ctx, rec)
	}

	data, err := s.readContent(ctx, rec)
	if err != nil {
		return "", err
	}
	if data != nil {
		desc, err := s.describer.DescribeWorld(data)
		if err != nil {
			slog.Warn("Failed to describe world", "record", rec, "error", err)
		} else {
			rec.Enrich(desc)
		}
	}

	return outcomeCommitted, s.commit(ctx, rec)
}

func (s *Spider) handleOther(ctx context.Context, _ *batch, rec domain.Record) (string, error) {
	if s.isIgnored(rec) {
		return outcomeDeleted, s.tombstone(ctx, rec)
	}
	return outcomeCommitted, s.commit(ctx, rec)
}

// readContent downloads the asset of rec. Download failures are logged and
// yield no content; only cancellation is returned.
func (s *Spider) readContent(ctx context.Context, rec domain.Record) ([]byte, error) {
	if rec.AssetURI == "" {
		return nil, nil
	}
	data, err := s.upstream.ReadPackedObject(ctx, rec.AssetURI)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Failed to read content", "record", rec, "asset", rec.AssetURI, "error", err)
		return nil, nil
	}
	return data, nil
}
