package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/query"
	"github.com/sha1n/redx-indexer/internal/store"
)

// BrowseArgument defines directory listing parameters.
type BrowseArgument struct {
	URI            string `json:"uri" jsonschema_description:"Record URI of the directory, in id form (resrec:///U-owner/R-id) or path form (resrec:///U-owner/Inventory/Dir)"`
	IncludeDeleted bool   `json:"include_deleted,omitempty" jsonschema_description:"Include records deleted upstream"`
	Limit          int    `json:"limit,omitempty" jsonschema_description:"Maximum number of children to return"`
	Offset         int    `json:"offset,omitempty" jsonschema_description:"Number of children to skip"`
}

// BrowseHandler handles the browse_directory MCP tool.
type BrowseHandler struct {
	store      *store.Store
	maxResults int
}

// NewBrowseHandler creates a new browse handler.
func NewBrowseHandler(s *store.Store, maxResults int) *BrowseHandler {
	return &BrowseHandler{
		store:      s,
		maxResults: maxResults,
	}
}

type listing struct {
	Directory recordView `json:"directory"`
	page
}

// Handle lists the committed children of a directory.
func (h *BrowseHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args BrowseArgument) (*mcp.CallToolResult, any, error) {
	stub, err := domain.ParseRecordURI(args.URI)
	if err != nil {
		return errorResult("Invalid record URI: %s", err), nil, nil
	}
	if args.Offset < 0 {
		return errorResult("Offset cannot be negative"), nil, nil
	}

	dir, found, err := h.store.Get(ctx, stub, false, args.IncludeDeleted)
	if err != nil {
		return errorResult("Lookup failed: %s", err), nil, nil
	}
	if !found {
		return errorResult("Directory not found: %s", args.URI), nil, nil
	}
	if dir.RecordType != domain.RecordTypeDirectory {
		return errorResult("Record %s is a %s, not a directory", args.URI, dir.RecordType), nil, nil
	}

	q, err := query.Children(dir.Stub(), false, args.IncludeDeleted)
	if err != nil {
		return errorResult("Invalid directory: %s", err), nil, nil
	}
	res, err := h.store.Search(ctx, store.Committed, q, pageSize(args.Limit, h.maxResults), args.Offset)
	if err != nil {
		return errorResult("Listing failed: %s", err), nil, nil
	}

	return jsonResult(listing{
		Directory: newRecordView(dir),
		page: page{
			Total:   res.Total,
			Offset:  args.Offset,
			Records: newRecordViews(res.Hits),
		},
	}), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *BrowseHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "browse_directory",
		Description: "List the records directly inside an indexed directory",
	}
}

// RegisterBrowseTool registers the browse tool with an MCP server.
func RegisterBrowseTool(server *mcp.Server, s *store.Store, maxResults int) {
	handler := NewBrowseHandler(s, maxResults)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
