package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/redx-indexer/internal/query"
	"github.com/sha1n/redx-indexer/internal/store"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query          string   `json:"query,omitempty" jsonschema_description:"Free text matched against record names, paths and tags"`
	Types          []string `json:"types,omitempty" jsonschema_description:"Record types (directory, link, object, world, other) or object types (e.g. texture); 'uncategorized' selects unclassified objects"`
	Fields         []string `json:"fields,omitempty" jsonschema_description:"Attributes the query is matched against: name, author, path, tags"`
	Owner          string   `json:"owner,omitempty" jsonschema_description:"Restrict to one owner id (e.g. U-alice or G-group)"`
	IncludeDeleted bool     `json:"include_deleted,omitempty" jsonschema_description:"Include records deleted upstream"`
	Limit          int      `json:"limit,omitempty" jsonschema_description:"Maximum number of records to return"`
	Offset         int      `json:"offset,omitempty" jsonschema_description:"Number of matches to skip"`
}

// SearchHandler handles the search_records MCP tool.
type SearchHandler struct {
	store      *store.Store
	maxResults int
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(s *store.Store, maxResults int) *SearchHandler {
	return &SearchHandler{
		store:      s,
		maxResults: maxResults,
	}
}

// Handle searches the committed index and returns a page of records.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	text := strings.TrimSpace(args.Query)
	if text == "" && len(args.Types) == 0 && args.Owner == "" {
		return errorResult("Query cannot be empty unless types or owner are given"), nil, nil
	}
	if args.Offset < 0 {
		return errorResult("Offset cannot be negative"), nil, nil
	}

	q := query.Search(text, args.Types, query.SearchFields(args.Fields), args.IncludeDeleted, query.Owner(args.Owner))
	res, err := h.store.Search(ctx, store.Committed, q, pageSize(args.Limit, h.maxResults), args.Offset)
	if err != nil {
		return errorResult("Search failed: %s", err), nil, nil
	}

	return jsonResult(page{
		Total:   res.Total,
		Offset:  args.Offset,
		Records: newRecordViews(res.Hits),
	}), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_records",
		Description: "Search indexed records by name, author, path or tags, optionally filtered by record or object type",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, s *store.Store, maxResults int) {
	handler := NewSearchHandler(s, maxResults)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
