package store

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/query"
)

// Result is one page of search results.
type Result struct {
	// Total is the engine's count of filter matches. Prefix post-filters
	// are not reflected in it.
	Total uint64
	Hits  []domain.Record
}

type match struct {
	id  string
	rec domain.Record
}

// Search runs q against an index. Requests larger than the page size are
// split into consecutive engine requests; size query.Unlimited fetches
// every match.
func (s *Store) Search(ctx context.Context, name IndexName, q query.Query, size, offset int) (Result, error) {
	ix, err := s.index(name)
	if err != nil {
		return Result{}, err
	}

	total, matches, err := s.collect(ctx, ix.engine, q, size, offset)
	if err != nil {
		return Result{}, fmt.Errorf("search on %s index failed: %w", name, err)
	}

	hits := make([]domain.Record, len(matches))
	for i, m := range matches {
		hits[i] = m.rec
	}
	return Result{Total: total, Hits: hits}, nil
}

func (s *Store) searchIDs(ctx context.Context, engine bleve.Index, q query.Query) ([]string, error) {
	_, matches, err := s.collect(ctx, engine, q, query.Unlimited, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return ids, nil
}

func (s *Store) collect(ctx context.Context, engine bleve.Index, q query.Query, size, offset int) (uint64, []match, error) {
	compiled, err := compile(q)
	if err != nil {
		return 0, nil, err
	}

	var (
		total uint64
		out   []match
		from  = offset
	)
	for {
		want := s.pageSize
		if size != query.Unlimited {
			remaining := size - len(out)
			if remaining <= 0 {
				break
			}
			want = min(want, remaining)
		}

		req := bleve.NewSearchRequestOptions(compiled, want, from, false)
		req.Fields = []string{fieldSource}
		if q.Text == "" {
			req.SortBy([]string{"_id"})
		} else {
			req.SortBy([]string{"-_score", "_id"})
		}

		res, err := engine.SearchInContext(ctx, req)
		if err != nil {
			return 0, nil, err
		}
		total = res.Total

		for _, hit := range res.Hits {
			rec, err := fromSource(hit.Fields[fieldSource])
			if err != nil {
				return 0, nil, fmt.Errorf("document %s: %w", hit.ID, err)
			}
			if !q.Accepts(rec) {
				continue
			}
			out = append(out, match{id: hit.ID, rec: rec})
		}

		if len(res.Hits) < want {
			break
		}
		from += len(res.Hits)
	}

	return total, out, nil
}
