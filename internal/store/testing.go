package store

import (
	"context"
	"testing"

	"github.com/sha1n/redx-indexer/internal/domain"
)

// NewTestStore creates an in-memory store closed at the end of the test.
// This is exported for use in other packages' tests.
func NewTestStore(t *testing.T, pageSize int) *Store {
	t.Helper()
	s, err := NewMemOnly(pageSize)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return s
}

// MustWrite writes records to an index and waits for them to apply.
func MustWrite(t *testing.T, s *Store, name IndexName, recs ...domain.Record) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range recs {
		task, err := s.Write(ctx, rec, name)
		if err != nil {
			t.Fatalf("Write(%s) failed: %v", rec, err)
		}
		if err := task.Wait(ctx); err != nil {
			t.Fatalf("Write(%s) task failed: %v", rec, err)
		}
	}
}

// MustGet looks up stub in one index, failing the test on engine errors.
func MustGet(t *testing.T, s *Store, name IndexName, stub domain.RecordStub, includeDeleted bool) (domain.Record, bool) {
	t.Helper()
	rec, ok, err := s.Lookup(context.Background(), name, stub, includeDeleted)
	if err != nil {
		t.Fatalf("Lookup(%+v) failed: %v", stub, err)
	}
	return rec, ok
}
