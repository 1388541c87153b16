package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/redx-indexer/internal/spider"
	"github.com/sha1n/redx-indexer/internal/store"
)

// StatusArgument takes no parameters.
type StatusArgument struct{}

// StatusHandler handles the index_status MCP tool.
type StatusHandler struct {
	store     *store.Store
	statePath string
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(s *store.Store, statePath string) *StatusHandler {
	return &StatusHandler{
		store:     s,
		statePath: statePath,
	}
}

type indexStatus struct {
	Documents uint64 `json:"documents"`
	Tasks     int    `json:"tasks"`
}

type status struct {
	Indexes     map[store.IndexName]indexStatus `json:"indexes"`
	LastSuccess time.Time                       `json:"lastSuccess,omitzero"`
	LastRun     *spider.RunState                `json:"lastRun,omitempty"`
}

// Handle reports document counts and the last spider run.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgument) (*mcp.CallToolResult, any, error) {
	st := status{Indexes: make(map[store.IndexName]indexStatus, len(store.Indexes))}
	for _, name := range store.Indexes {
		count, err := h.store.DocCount(name)
		if err != nil {
			return errorResult("Failed to count %s documents: %s", name, err), nil, nil
		}
		st.Indexes[name] = indexStatus{
			Documents: count,
			Tasks:     h.store.PendingTasks(store.TaskFilter{Indexes: []store.IndexName{name}}),
		}
	}

	if h.statePath != "" {
		state, err := spider.LoadState(h.statePath)
		if err != nil {
			return errorResult("Failed to read spider state: %s", err), nil, nil
		}
		st.LastSuccess = state.LastSuccess
		if run := state.Snapshot(); run.ID != "" {
			st.LastRun = &run
		}
	}

	return jsonResult(st), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *StatusHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "index_status",
		Description: "Report index document counts and the outcome of the last spider run",
	}
}

// RegisterStatusTool registers the status tool with an MCP server.
func RegisterStatusTool(server *mcp.Server, s *store.Store, statePath string) {
	handler := NewStatusHandler(s, statePath)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
