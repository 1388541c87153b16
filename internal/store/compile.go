package store

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	bq "github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/redx-indexer/internal/query"
)

// compileFilter translates a filter expression into a bleve query. The
// empty expression matches every document.
func compileFilter(e query.Expr) (bq.Query, error) {
	if query.IsEmpty(e) {
		return bleve.NewMatchAllQuery(), nil
	}

	switch e := e.(type) {
	case query.Equals:
		return compileEquals(e.Attr, e.Value), nil

	case query.InSet:
		terms := make([]bq.Query, 0, len(e.Values))
		for _, v := range e.Values {
			terms = append(terms, term(e.Attr, v))
		}
		return bleve.NewDisjunctionQuery(terms...), nil

	case query.NotExists:
		return bq.NewBooleanQuery(
			[]bq.Query{bleve.NewMatchAllQuery()},
			nil,
			[]bq.Query{term(fieldPresent, e.Attr)},
		), nil

	case query.Join:
		operands := make([]bq.Query, 0, len(e.Operands))
		for _, o := range e.Operands {
			c, err := compileFilter(o)
			if err != nil {
				return nil, err
			}
			operands = append(operands, c)
		}
		if e.Op == query.OpOr {
			return bleve.NewDisjunctionQuery(operands...), nil
		}
		return bleve.NewConjunctionQuery(operands...), nil

	default:
		return nil, fmt.Errorf("unsupported filter expression %T", e)
	}
}

func compileEquals(attr string, value any) bq.Query {
	switch v := value.(type) {
	case bool:
		q := bleve.NewBoolFieldQuery(v)
		q.SetField(attr)
		return q
	case string:
		return term(attr, v)
	default:
		return term(attr, fmt.Sprint(v))
	}
}

func term(field, value string) bq.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

// compile builds the full engine query: the free-text part, if any, is
// matched against the requested fields and conjoined with the filter.
func compile(q query.Query) (bq.Query, error) {
	filter, err := compileFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	if q.Text == "" {
		return filter, nil
	}

	fields := q.Fields
	if len(fields) == 0 {
		fields = query.DefaultSearchFields
	}
	matches := make([]bq.Query, 0, len(fields))
	for _, f := range fields {
		m := bleve.NewMatchQuery(q.Text)
		m.SetField(f)
		matches = append(matches, m)
	}
	text := bleve.NewDisjunctionQuery(matches...)

	if query.IsEmpty(q.Filter) {
		return text, nil
	}
	return bleve.NewConjunctionQuery(text, filter), nil
}
