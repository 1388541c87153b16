package mcp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/redx-indexer/internal/domain"
)

// recordView is the projection of a record returned by the tools. The
// searchable projections stay internal.
type recordView struct {
	URI                  string            `json:"uri"`
	PathURI              string            `json:"pathUri,omitempty"`
	OwnerID              string            `json:"ownerId"`
	OwnerName            string            `json:"ownerName,omitempty"`
	Name                 string            `json:"name"`
	Path                 string            `json:"path"`
	RecordType           domain.RecordType `json:"recordType"`
	ObjectType           string            `json:"objectType,omitempty"`
	Tags                 []string          `json:"tags,omitempty"`
	AssetURI             string            `json:"assetUri,omitempty"`
	ThumbnailURI         string            `json:"thumbnailUri,omitempty"`
	IsDeleted            bool              `json:"isDeleted,omitempty"`
	Version              int64             `json:"version"`
	LastModificationTime time.Time         `json:"lastModificationTime,omitzero"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

func newRecordView(rec domain.Record) recordView {
	v := recordView{
		URI:                  domain.RecordURI(rec.Stub(), false),
		OwnerID:              rec.OwnerID,
		OwnerName:            rec.OwnerName,
		Name:                 rec.Name,
		Path:                 rec.Path,
		RecordType:           rec.RecordType,
		ObjectType:           rec.ObjectType,
		Tags:                 rec.Tags,
		AssetURI:             rec.AssetURI,
		ThumbnailURI:         rec.ThumbnailURI,
		IsDeleted:            rec.IsDeleted,
		Version:              rec.Version,
		LastModificationTime: rec.LastModificationTime,
		Metadata:             rec.Metadata,
	}
	if rec.ID != "" && rec.Path != "" && rec.Name != "" {
		v.PathURI = domain.RecordURI(rec.Stub(), true)
	}
	return v
}

func newRecordViews(recs []domain.Record) []recordView {
	views := make([]recordView, len(recs))
	for i, rec := range recs {
		views[i] = newRecordView(rec)
	}
	return views
}

// page is a window of records and the total number of matches.
type page struct {
	Total   uint64       `json:"total"`
	Offset  int          `json:"offset"`
	Records []recordView `json:"records"`
}

// pageSize clamps a requested result count to [1, maxResults].
func pageSize(limit, maxResults int) int {
	if limit <= 0 || limit > maxResults {
		return maxResults
	}
	return limit
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("Failed to encode result: %s", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}
}
