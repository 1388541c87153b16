package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/cespare/xxhash/v2"
	"github.com/sha1n/redx-indexer/internal/domain"
)

const (
	// fieldSource holds the stored JSON form of the record.
	fieldSource = "source"

	// fieldPresent lists the keyword attributes that carry a value. It backs
	// NotExists predicates.
	fieldPresent = "presentFields"
)

// keywordFields are matched exactly by filters.
var keywordFields = []string{
	domain.FieldOwnerID,
	domain.FieldID,
	domain.FieldName,
	domain.FieldPath,
	domain.FieldRecordType,
	domain.FieldObjectType,
	domain.FieldAssetURI,
	domain.FieldPathArray,
	fieldPresent,
}

// textFields are analyzed for free-text search.
var textFields = []string{
	domain.FieldSimpleName,
	domain.FieldOwnerName,
	domain.FieldPathNameSearchable,
	domain.FieldOwnerPathNameSearchable,
	domain.FieldTagsSearchable,
}

// NewIndexMapping creates the mapping shared by the pending and committed indices.
func NewIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	for _, f := range keywordFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = false
		docMapping.AddFieldMappingsAt(f, fm)
	}

	for _, f := range textFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = false
		docMapping.AddFieldMappingsAt(f, fm)
	}

	deleted := bleve.NewBooleanFieldMapping()
	deleted.Store = false
	docMapping.AddFieldMappingsAt(domain.FieldIsDeleted, deleted)

	// Stored but not indexed; hits are decoded from it
	source := bleve.NewTextFieldMapping()
	source.Index = false
	source.Store = true
	docMapping.AddFieldMappingsAt(fieldSource, source)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	indexMapping.IndexDynamic = false
	indexMapping.StoreDynamic = false

	return indexMapping
}

// Key returns the document key of an identity. Records addressed by path
// only are keyed by a hash of their full path.
func Key(stub domain.RecordStub) string {
	if stub.ID != "" {
		return stub.OwnerID + "/" + stub.ID
	}
	return stub.OwnerID + "/p:" + strconv.FormatUint(xxhash.Sum64String(stub.FullPath()), 16)
}

// toDocument converts a sanitized record into its indexed form.
func toDocument(rec domain.Record) (map[string]any, error) {
	src, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	doc := map[string]any{
		fieldSource:           string(src),
		domain.FieldIsDeleted: rec.IsDeleted,
	}

	var present []string
	for _, f := range keywordFields {
		if f == domain.FieldPathArray || f == fieldPresent {
			continue
		}
		if v := rec.Attribute(f); v != "" {
			doc[f] = v
			present = append(present, f)
		}
	}
	if len(rec.PathArray) > 0 {
		doc[domain.FieldPathArray] = rec.PathArray
		present = append(present, domain.FieldPathArray)
	}
	doc[fieldPresent] = present

	text := map[string]string{
		domain.FieldSimpleName:              rec.SimpleName,
		domain.FieldOwnerName:               rec.OwnerName,
		domain.FieldPathNameSearchable:      rec.PathNameSearchable,
		domain.FieldOwnerPathNameSearchable: rec.OwnerPathNameSearchable,
		domain.FieldTagsSearchable:          rec.TagsSearchable,
	}
	for f, v := range text {
		if v != "" {
			doc[f] = v
		}
	}

	return doc, nil
}

// fromSource decodes a stored record.
func fromSource(v any) (domain.Record, error) {
	s, ok := v.(string)
	if !ok {
		return domain.Record{}, fmt.Errorf("hit has no stored source")
	}
	var rec domain.Record
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return domain.Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
