package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/redx-indexer/internal/origin"
	"github.com/sha1n/redx-indexer/internal/store"
)

// DefaultMaxResults caps result pages when ServerConfig.MaxResults is unset.
const DefaultMaxResults = 20

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// Store is the record store the tools read from. Without it the server
	// exposes no tools.
	Store *store.Store
	// Resolver backs record_origin. Without it the tool is not registered.
	Resolver *origin.Resolver
	// StatePath is the spider state file reported by index_status.
	StatePath  string
	MaxResults int
}

func (c ServerConfig) maxResults() int {
	if c.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return c.MaxResults
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Store == nil {
		return s
	}

	RegisterSearchTool(s, cfg.Store, cfg.maxResults())
	RegisterBrowseTool(s, cfg.Store, cfg.maxResults())
	RegisterStatusTool(s, cfg.Store, cfg.StatePath)
	if cfg.Resolver != nil {
		RegisterOriginTool(s, cfg.Resolver)
	}

	return s
}
