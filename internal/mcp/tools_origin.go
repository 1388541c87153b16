package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/redx-indexer/internal/domain"
	"github.com/sha1n/redx-indexer/internal/origin"
)

// OriginArgument defines origin resolution parameters.
type OriginArgument struct {
	URI      string `json:"uri" jsonschema_description:"Record URI to trace back to the root records"`
	MaxDepth *int   `json:"max_depth,omitempty" jsonschema_description:"Maximum number of ancestors to follow along any branch (0-5)"`
}

// OriginHandler handles the record_origin MCP tool.
type OriginHandler struct {
	resolver *origin.Resolver
}

// NewOriginHandler creates a new origin handler.
func NewOriginHandler(resolver *origin.Resolver) *OriginHandler {
	return &OriginHandler{resolver: resolver}
}

// Handle resolves the origin tree of a record.
func (h *OriginHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args OriginArgument) (*mcp.CallToolResult, any, error) {
	depth := -1
	if args.MaxDepth != nil {
		depth = *args.MaxDepth
		if depth < 0 {
			return errorResult("max_depth cannot be negative"), nil, nil
		}
	}

	node, err := h.resolver.ResolveURI(ctx, args.URI, depth)
	switch {
	case errors.Is(err, domain.ErrInvalidRecordURI), errors.Is(err, domain.ErrInvalidStub):
		return errorResult("Invalid record URI: %s", err), nil, nil
	case errors.Is(err, origin.ErrInvalidDepth):
		return errorResult("Invalid max_depth: %s", err), nil, nil
	case err != nil:
		return errorResult("Origin resolution failed: %s", err), nil, nil
	}

	return jsonResult(node), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *OriginHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "record_origin",
		Description: "Explain how a record is reachable from the root records through parent directories and incoming links",
	}
}

// RegisterOriginTool registers the origin tool with an MCP server.
func RegisterOriginTool(server *mcp.Server, resolver *origin.Resolver) {
	handler := NewOriginHandler(resolver)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
