package domain

// Indexed attribute names, shared by filter expressions and index mappings.
const (
	FieldOwnerID                 = "ownerId"
	FieldOwnerName               = "ownerName"
	FieldID                      = "id"
	FieldName                    = "name"
	FieldPath                    = "path"
	FieldRecordType              = "recordType"
	FieldObjectType              = "objectType"
	FieldAssetURI                = "assetUri"
	FieldIsDeleted               = "isDeleted"
	FieldSimpleName              = "simpleName"
	FieldPathArray               = "pathArray"
	FieldPathNameSearchable      = "pathNameSearchable"
	FieldOwnerPathNameSearchable = "ownerPathNameSearchable"
	FieldTagsSearchable          = "tagsSearchable"
)

// Attribute returns the value of a string attribute, or "" for attributes
// that are not plain strings.
func (r Record) Attribute(name string) string {
	switch name {
	case FieldOwnerID:
		return r.OwnerID
	case FieldOwnerName:
		return r.OwnerName
	case FieldID:
		return r.ID
	case FieldName:
		return r.Name
	case FieldPath:
		return r.Path
	case FieldRecordType:
		return string(r.RecordType)
	case FieldObjectType:
		return r.ObjectType
	case FieldAssetURI:
		return r.AssetURI
	case FieldSimpleName:
		return r.SimpleName
	default:
		return ""
	}
}
