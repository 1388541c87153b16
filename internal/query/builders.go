package query

import (
	"fmt"
	"strings"

	"github.com/sha1n/redx-indexer/internal/domain"
)

// Unlimited is the size sentinel meaning "fetch every match".
const Unlimited = -1

// Uncategorized selects object records the describer could not classify.
const Uncategorized = "uncategorized"

// DefaultSearchFields are the attributes free text is matched against.
var DefaultSearchFields = []string{
	domain.FieldSimpleName,
	domain.FieldOwnerPathNameSearchable,
	domain.FieldTagsSearchable,
}

// searchKinds maps user facing search kinds to indexed attributes.
var searchKinds = map[string]string{
	"name":   domain.FieldSimpleName,
	"author": domain.FieldOwnerName,
	"path":   domain.FieldPathNameSearchable,
	"tags":   domain.FieldTagsSearchable,
}

// Prefix is a client-side post-filter: the attribute must equal Value or
// lie below it in the backslash path hierarchy. Prefix filters on array
// attributes are not expressible in the engine filter language.
type Prefix struct {
	Attr  string
	Value string
}

// Matches reports whether v equals the prefix or descends from it.
func (p Prefix) Matches(v string) bool {
	return v == p.Value || strings.HasPrefix(v, p.Value+domain.PathSeparator)
}

// Query is a complete search request against one index.
type Query struct {
	// Text is the free-text query. Empty means a pure filter listing.
	Text string
	// Fields restricts which attributes Text is matched against.
	Fields []string
	// Filter is the engine filter. nil places no constraint.
	Filter Expr
	// Prefixes are applied to each page of engine results.
	Prefixes []Prefix
}

// Accepts applies the prefix post-filters to rec.
func (q Query) Accepts(rec domain.Record) bool {
	for _, p := range q.Prefixes {
		if !p.Matches(rec.Attribute(p.Attr)) {
			return false
		}
	}
	return true
}

// String renders the query for log lines.
func (q Query) String() string {
	var sb strings.Builder
	if q.Text != "" {
		fmt.Fprintf(&sb, "q=%q ", q.Text)
	}
	sb.WriteString("filter=" + String(q.Filter))
	for _, p := range q.Prefixes {
		fmt.Fprintf(&sb, " prefix(%s)=%q", p.Attr, p.Value)
	}
	return sb.String()
}

// NotDeleted excludes tombstoned records.
func NotDeleted() Expr {
	return Eq(domain.FieldIsDeleted, false)
}

func maybeNotDeleted(filter Expr, includeDeleted bool) Expr {
	if includeDeleted {
		return filter
	}
	return And(filter, NotDeleted())
}

// TypeFilter matches any of the given types. Record types and object types
// are joined by OR: an object type narrows the object record type, so the
// two are not independent facets.
func TypeFilter(types []string) Expr {
	var recordTypes, objectTypes []string
	var uncategorized Expr
	for _, t := range types {
		switch {
		case t == Uncategorized:
			uncategorized = And(
				Eq(domain.FieldRecordType, string(domain.RecordTypeObject)),
				In(domain.FieldObjectType, nil, true),
			)
		case domain.IsRecordType(t):
			recordTypes = append(recordTypes, t)
		default:
			objectTypes = append(objectTypes, t)
		}
	}
	return Or(
		In(domain.FieldRecordType, recordTypes, false),
		In(domain.FieldObjectType, objectTypes, false),
		uncategorized,
	)
}

// SearchFields maps search kinds (name, author, path, tags) to attributes.
// Unknown kinds are ignored; no known kind yields DefaultSearchFields.
func SearchFields(kinds []string) []string {
	var fields []string
	for _, k := range kinds {
		if f, ok := searchKinds[k]; ok {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return DefaultSearchFields
	}
	return fields
}

// Search builds a free-text query restricted to types and extra filters.
func Search(text string, types, fields []string, includeDeleted bool, extra ...Expr) Query {
	filter := And(append([]Expr{TypeFilter(types)}, extra...)...)
	return Query{
		Text:   strings.TrimSpace(text),
		Fields: fields,
		Filter: maybeNotDeleted(filter, includeDeleted),
	}
}

// Exact matches the record addressed by stub, by id or by path and name.
func Exact(stub domain.RecordStub, includeDeleted bool) (Query, error) {
	if err := stub.Validate(); err != nil {
		return Query{}, err
	}
	identity := Eq(domain.FieldID, stub.ID)
	if stub.ID == "" {
		identity = And(Eq(domain.FieldPath, stub.Path), Eq(domain.FieldName, stub.Name))
	}
	return Query{
		Filter: maybeNotDeleted(And(Eq(domain.FieldOwnerID, stub.OwnerID), identity), includeDeleted),
	}, nil
}

// Children matches the records inside the directory addressed by stub. A
// deep query matches the whole subtree through a path prefix post-filter.
func Children(stub domain.RecordStub, deep, includeDeleted bool) (Query, error) {
	if stub.OwnerID == "" || stub.Name == "" {
		return Query{}, fmt.Errorf("%w: children lookup needs ownerId and name", domain.ErrInvalidStub)
	}
	dirPath := stub.FullPath()

	q := Query{}
	filter := Eq(domain.FieldOwnerID, stub.OwnerID)
	if deep {
		if name := domain.NormalizePathComponent(stub.Name); name != "" {
			filter = And(filter, Eq(domain.FieldPathArray, name))
		}
		q.Prefixes = []Prefix{{Attr: domain.FieldPath, Value: dirPath}}
	} else {
		filter = And(filter, Eq(domain.FieldPath, dirPath))
	}
	q.Filter = maybeNotDeleted(filter, includeDeleted)
	return q, nil
}

// IncomingLinks matches link records targeting stub by either URI form.
func IncomingLinks(stub domain.RecordStub, includeDeleted bool) (Query, error) {
	if err := stub.Validate(); err != nil {
		return Query{}, err
	}
	var targets []string
	if stub.ID != "" {
		targets = append(targets, domain.RecordURI(stub, false))
	}
	if stub.Path != "" && stub.Name != "" {
		targets = append(targets, domain.RecordURI(stub, true))
	}
	filter := And(
		Eq(domain.FieldRecordType, string(domain.RecordTypeLink)),
		In(domain.FieldAssetURI, targets, true),
	)
	return Query{Filter: maybeNotDeleted(filter, includeDeleted)}, nil
}

// Directories matches every directory record.
func Directories(includeDeleted bool) Query {
	filter := Eq(domain.FieldRecordType, string(domain.RecordTypeDirectory))
	return Query{Filter: maybeNotDeleted(filter, includeDeleted)}
}

// Owner restricts a query to one owner.
func Owner(ownerID string) Expr {
	if ownerID == "" {
		return nil
	}
	return Eq(domain.FieldOwnerID, ownerID)
}
