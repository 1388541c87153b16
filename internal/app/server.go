package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sha1n/redx-indexer/internal/auth"
	"github.com/sha1n/redx-indexer/internal/config"
)

// shutdownTimeout bounds the graceful shutdown of HTTP servers
const shutdownTimeout = 5 * time.Second

// StartSSEServer starts the SSE server with authentication and stops it
// when ctx is done.
func StartSSEServer(ctx context.Context, s *mcp.Server, gatherer prometheus.Gatherer, settings *config.Settings) error {
	srv, err := NewSSEServer(s, gatherer, settings)
	if err != nil {
		return err
	}

	slog.Info("Server listening (HTTP)", "addr", srv.Addr, "auth_type", settings.Auth.Type)
	return serve(ctx, srv)
}

// NewSSEServer creates a new SSE server with authentication middleware.
// A nil gatherer leaves /metrics unregistered.
func NewSSEServer(s *mcp.Server, gatherer prometheus.Gatherer, settings *config.Settings) (*http.Server, error) {
	// Factory function returns the server instance for each request
	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/sse", sseHandler)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	authMiddleware, err := auth.NewMiddleware(settings.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}

	handler := authMiddleware(mux)
	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)

	return &http.Server{
		Addr:    addr,
		Handler: handler,
	}, nil
}

// NewMetricsServer creates the HTTP server exposing /metrics and /health
// during spider runs.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

// StartMetricsServer serves metrics in the background. The returned
// function shuts the server down.
func StartMetricsServer(addr string, gatherer prometheus.Gatherer) func() {
	srv := NewMetricsServer(addr, gatherer)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		slog.Info("Metrics listening (HTTP)", "addr", srv.Addr)
		if err := serve(ctx, srv); err != nil {
			slog.Error("Metrics server failed", "addr", srv.Addr, "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// serve runs srv until it fails or ctx is done.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
