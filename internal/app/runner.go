package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/sha1n/redx-indexer/internal/cloud"
	"github.com/sha1n/redx-indexer/internal/config"
	"github.com/sha1n/redx-indexer/internal/describe"
	"github.com/sha1n/redx-indexer/internal/ignore"
	mcputil "github.com/sha1n/redx-indexer/internal/mcp"
	"github.com/sha1n/redx-indexer/internal/origin"
	"github.com/sha1n/redx-indexer/internal/roots"
	"github.com/sha1n/redx-indexer/internal/spider"
	"github.com/sha1n/redx-indexer/internal/store"
)

// ServerName is the MCP implementation name
const ServerName = "redx"

// RunParams contains dependencies for the run functions
type RunParams struct {
	LoadSettings       func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings      func(*config.Settings) error
	StartSSEServer     func(context.Context, *mcp.Server, prometheus.Gatherer, *config.Settings) error
	CreateServer       func(context.Context, *config.Settings, string) (*mcp.Server, prometheus.Gatherer, func(), error)
	NewUpstream        func(*config.Settings) (cloud.Upstream, error)
	StartMetricsServer func(string, prometheus.Gatherer) func()
	CustomIOTransport  mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:       config.LoadSettingsWithFlags,
		ValidSettings:      config.ValidateSettings,
		StartSSEServer:     StartSSEServer,
		CreateServer:       CreateMCPServer,
		NewUpstream:        NewUpstream,
		StartMetricsServer: StartMetricsServer,
	}
}

// loadSettings loads and validates settings, then configures logging
func loadSettings(params RunParams, flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	return settings, nil
}

// RunWithDeps serves the MCP read surface with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting redx MCP server", "version", version)
	config.Log(settings)

	mcpServer, gatherer, cleanup, err := params.CreateServer(ctx, settings, version)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(ctx, mcpServer, gatherer, settings)
}

// RunSpiderWithDeps runs a spider command with the provided dependencies.
// The spider lock is held for the whole run.
func RunSpiderWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string, cmd spider.Command, arg string) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting redx spider", "version", version, "command", cmd)
	config.Log(settings)

	lock := spider.NewLock(settings.Index.Dir)
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", settings.Index.Dir, err)
	}
	defer unlock(lock)

	st, err := store.Open(settings.Index.Dir, settings.Index.PageSize)
	if err != nil {
		return err
	}
	defer closeStore(st)

	upstream, err := params.NewUpstream(settings)
	if err != nil {
		return fmt.Errorf("failed to create upstream client: %w", err)
	}

	rootSet, err := roots.Load(settings.Spider.RootsFile)
	if err != nil {
		return err
	}
	ignores, err := ignore.Load(settings.Spider.IgnoreFile)
	if err != nil {
		return err
	}

	statePath := spider.StatePath(settings.Index.Dir)
	state, err := spider.LoadState(statePath)
	if err != nil {
		return err
	}

	if settings.MetricsAddr != "" && params.StartMetricsServer != nil {
		stop := params.StartMetricsServer(settings.MetricsAddr, NewRegistry(st, spider.Collectors()...))
		defer stop()
	}

	slog.Info("Spider configured", "index_dir", settings.Index.Dir, "roots", rootSet.Len(), "ignore_rules", ignores.Len())

	s := spider.New(spider.Deps{
		Store:     st,
		Upstream:  upstream,
		Describer: describe.New(),
		Ignore:    ignores,
		Roots:     rootSet,
		State:     state,
		StatePath: statePath,
	}, settings.Spider)

	return s.Run(ctx, cmd, arg)
}

// NewUpstream creates the HTTP client of the record API behind a record cache
func NewUpstream(settings *config.Settings) (cloud.Upstream, error) {
	client := cloud.NewClient(settings.Upstream.BaseURL, settings.Upstream.AssetsURL, settings.Upstream.Timeout)
	cached, err := cloud.NewCachedUpstream(client, settings.Upstream.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// CreateMCPServer opens the indices read-only and creates the MCP server
// with registered tools. It waits for a running spider to finish and keeps
// the spider lock until cleanup.
func CreateMCPServer(ctx context.Context, settings *config.Settings, version string) (*mcp.Server, prometheus.Gatherer, func(), error) {
	dir := settings.Index.Dir
	lock := spider.NewLock(dir)

	slog.Info("Acquiring index lock", "path", lock.Path(), "timeout", settings.Index.LockTimeout)
	if err := lock.LockWithContext(ctx, settings.Index.LockTimeout); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to lock %s: %w", dir, err)
	}

	if !store.IndexExists(dir) {
		slog.Warn("No index found, creating an empty one", "index_dir", dir)
		st, err := store.Open(dir, settings.Index.PageSize)
		if err != nil {
			unlock(lock)
			return nil, nil, nil, err
		}
		closeStore(st)
	}

	st, err := store.OpenReadOnly(dir, settings.Index.PageSize)
	if err != nil {
		unlock(lock)
		return nil, nil, nil, err
	}

	rootSet, err := roots.Load(settings.Spider.RootsFile)
	if err != nil {
		closeStore(st)
		unlock(lock)
		return nil, nil, nil, err
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:       ServerName,
		Version:    version,
		Store:      st,
		Resolver:   origin.New(st, rootSet.Stubs(), settings.Origin.DefaultMaxDepth),
		StatePath:  spider.StatePath(dir),
		MaxResults: settings.Index.MaxResults,
	})

	cleanup := func() {
		closeStore(st)
		unlock(lock)
	}

	return server, NewRegistry(st), cleanup, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("Failed to close index", "error", err)
	}
}

func unlock(lock *spider.Lock) {
	if err := lock.Unlock(); err != nil {
		slog.Error("Failed to release index lock", "path", lock.Path(), "error", err)
	}
}
