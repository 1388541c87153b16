package spider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/store"
)

var pendingTasks = store.TaskFilter{Indexes: []store.IndexName{store.Pending}}

// Drain reconciles pending records batch by batch until the pending index
// is empty. A record that still fails after its retries aborts the drain
// and stays pending.
func (s *Spider) Drain(ctx context.Context) error {
	for {
		if err := s.store.WaitForTasks(ctx, pendingTasks); err != nil {
			return err
		}

		records, err := s.store.SomePending(ctx, s.batchSize)
		if err != nil {
			return fmt.Errorf("failed to read pending records: %w", err)
		}
		if len(records) == 0 {
			slog.Info("Pending queue drained")
			return nil
		}

		if err := s.drainBatch(ctx, records); err != nil {
			return err
		}
	}
}

// dedupe keeps the first record per identity. The record URI is the
// identity: the id when there is one, the path and name otherwise.
func dedupe(records []domain.Record) []domain.Record {
	seen := make(map[string]struct{}, len(records))
	result := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		uri := domain.RecordURI(rec.Stub(), false)
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		result = append(result, rec)
	}
	return result
}

func (s *Spider) drainBatch(ctx context.Context, records []domain.Record) error {
	start := time.Now()
	b := newBatch()
	records = dedupe(records)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, rec := range records {
		g.Go(func() error {
			return s.process(gctx, b, rec)
		})
	}
	err := g.Wait()

	Batches.Inc()
	BatchDuration.Observe(time.Since(start).Seconds())
	s.state.AddBatch()
	s.saveState()

	slog.Debug("Batch drained", "records", len(records), "duration", time.Since(start))
	return err
}

// process reconciles one pending record and removes it from the pending index.
func (s *Spider) process(ctx context.Context, b *batch, rec domain.Record) error {
	recordType := string(rec.RecordType)
	if b.isDeleted(rec.Stub()) {
		slog.Info("Skipped pending record deleted in this batch", "record", rec)
		RecordsProcessed.WithLabelValues(recordType, outcomeSkipped).Inc()
		return nil
	}

	slog.Debug("Processing pending record", "record", rec)
	var outcome string
	err := s.backoff.Retry(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = s.reconcile(ctx, b, rec)
		return err
	}, func(attempt int, err error) {
		slog.Warn("Retrying pending record", "record", rec, "attempt", attempt, "error", err)
		RecordRetries.WithLabelValues(recordType).Inc()
		s.state.AddRetry()
	})
	if err != nil {
		RecordsProcessed.WithLabelValues(recordType, outcomeFailed).Inc()
		return fmt.Errorf("failed to reconcile %s: %w", rec, err)
	}

	RecordsProcessed.WithLabelValues(recordType, outcome).Inc()
	s.state.AddProcessed()

	_, err = s.deletePending(ctx, b, rec)
	return err
}
