package cloud

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sha1n/redx-indexer/internal/domain"
)

// CachedUpstream memoizes FetchRecord results, including not-found answers.
// Directory listings and assets are never cached.
type CachedUpstream struct {
	Upstream
	records *lru.Cache[domain.RecordStub, fetchResult]
}

type fetchResult struct {
	rec domain.Record
	err error
}

// NewCachedUpstream wraps upstream with an LRU cache of size entries.
func NewCachedUpstream(upstream Upstream, size int) (*CachedUpstream, error) {
	cache, err := lru.New[domain.RecordStub, fetchResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}
	return &CachedUpstream{Upstream: upstream, records: cache}, nil
}

// FetchRecord returns a cached answer or asks the wrapped upstream.
// Transient errors are not cached.
func (c *CachedUpstream) FetchRecord(ctx context.Context, stub domain.RecordStub) (domain.Record, error) {
	if r, ok := c.records.Get(stub); ok {
		return r.rec, r.err
	}
	rec, err := c.Upstream.FetchRecord(ctx, stub)
	if err == nil || IsPermanent(err) {
		c.records.Add(stub, fetchResult{rec: rec, err: err})
	}
	return rec, err
}

// Len returns the number of cached entries.
func (c *CachedUpstream) Len() int {
	return c.records.Len()
}
