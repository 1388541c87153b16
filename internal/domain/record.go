package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidStub indicates a stub that carries neither an id nor a path and name.
var ErrInvalidStub = errors.New("invalid record stub")

// RecordType is the variant tag of a Record.
type RecordType string

const (
	RecordTypeDirectory RecordType = "directory"
	RecordTypeLink      RecordType = "link"
	RecordTypeObject    RecordType = "object"
	RecordTypeWorld     RecordType = "world"
	RecordTypeOther     RecordType = "other"
)

// RecordTypes lists the record types with a dedicated reconciliation handler.
var RecordTypes = []RecordType{RecordTypeDirectory, RecordTypeLink, RecordTypeObject, RecordTypeWorld}

// IsRecordType reports whether s names one of RecordTypes.
func IsRecordType(s string) bool {
	for _, t := range RecordTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// RecordStub is the minimal identity of a record. It is usable for lookups
// before (or without) fetching the record itself.
type RecordStub struct {
	OwnerID string `json:"ownerId"`
	ID      string `json:"id,omitempty"`
	Path    string `json:"path,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Validate checks that the stub can address a record.
func (s RecordStub) Validate() error {
	if s.OwnerID == "" {
		return fmt.Errorf("%w: ownerId must be specified", ErrInvalidStub)
	}
	if s.ID == "" && (s.Path == "" || s.Name == "") {
		return fmt.Errorf("%w: either id or both path and name must be specified", ErrInvalidStub)
	}
	return nil
}

// FullPath returns the backslash-delimited path including the record name.
func (s RecordStub) FullPath() string {
	if s.Path == "" {
		return s.Name
	}
	return s.Path + PathSeparator + s.Name
}

// SameIdentity reports whether a and b address the same record: the owners
// match and either both ids match, or both lack an id and path and name match.
func SameIdentity(a, b RecordStub) bool {
	if a.OwnerID != b.OwnerID {
		return false
	}
	if a.ID != "" || b.ID != "" {
		return a.ID == b.ID
	}
	return a.Path == b.Path && a.Name == b.Name
}

// Record is a node of the upstream content graph as stored in the indices.
//
// ObjectType is only meaningful for RecordTypeObject; Sanitize clears it on
// every other variant and Enrich refuses to set it.
type Record struct {
	OwnerID              string            `json:"ownerId"`
	OwnerName            string            `json:"ownerName"`
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Path                 string            `json:"path"`
	RecordType           RecordType        `json:"recordType"`
	ObjectType           string            `json:"objectType,omitempty"`
	Tags                 []string          `json:"tags"`
	AssetURI             string            `json:"assetUri,omitempty"`
	ThumbnailURI         string            `json:"thumbnailUri,omitempty"`
	TextureURI           string            `json:"textureUri,omitempty"`
	IsDeleted            bool              `json:"isDeleted"`
	Version              int64             `json:"version"`
	CreationTime         time.Time         `json:"creationTime"`
	LastModificationTime time.Time         `json:"lastModificationTime"`
	Metadata             map[string]string `json:"metadata,omitempty"`

	// Searchable projections, derived by Sanitize. Never read back as source of truth.
	SimpleName              string   `json:"simpleName,omitempty"`
	PathArray               []string `json:"pathArray,omitempty"`
	PathNameSearchable      string   `json:"pathNameSearchable,omitempty"`
	OwnerPathNameSearchable string   `json:"ownerPathNameSearchable,omitempty"`
	TagsSearchable          string   `json:"tagsSearchable,omitempty"`
}

// Stub returns the identity of the record. The id form is preferred when
// the record has an id.
func (r Record) Stub() RecordStub {
	return RecordStub{OwnerID: r.OwnerID, ID: r.ID, Path: r.Path, Name: r.Name}
}

// IsNewerThan reports whether r is strictly newer than other. Versions are
// compared first; the modification time breaks ties. Both are assumed to be
// monotonic upstream.
func (r Record) IsNewerThan(other Record) bool {
	if r.Version != other.Version {
		return r.Version > other.Version
	}
	return r.LastModificationTime.After(other.LastModificationTime)
}

// Description is the metadata a describer extracts from a record or its content.
type Description struct {
	ObjectType string
	WorldURI   string
	Metadata   map[string]string
}

// Enrich merges d into the record. The object type is only applied to
// object records.
func (r *Record) Enrich(d Description) {
	if d.ObjectType != "" && r.RecordType == RecordTypeObject {
		r.ObjectType = d.ObjectType
	}
	if len(d.Metadata) == 0 {
		return
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]string, len(d.Metadata))
	}
	for k, v := range d.Metadata {
		r.Metadata[k] = v
	}
}

// String renders the record for log lines.
func (r Record) String() string {
	return fmt.Sprintf("%s %s (%s)", r.RecordType, RecordURI(r.Stub(), false), r.Stub().FullPath())
}
