package testkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/sha1n/redx-indexer/internal/app"
)

// Service is a component an integration test starts and stops
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// Env starts services in order and stops them in reverse order. Properties
// reported by each service are merged into one map.
type Env struct {
	services   []Service
	properties map[string]any
}

// NewEnv creates a new test environment with the given services
func NewEnv(services ...Service) *Env {
	return &Env{
		services:   services,
		properties: make(map[string]any),
	}
}

// Start starts every service. Services started before a failure are stopped.
func (e *Env) Start() (map[string]any, error) {
	for i, s := range e.services {
		props, err := s.Start()
		if err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = e.services[j].Stop()
			}
			return nil, fmt.Errorf("failed to start %s: %w", s.GetName(), err)
		}
		for k, v := range props {
			e.properties[k] = v
		}
	}
	return e.properties, nil
}

// Stop stops every service in reverse order and returns the last error
func (e *Env) Stop() error {
	var lastErr error
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Property returns a property reported by a started service
func (e *Env) Property(name string) (any, bool) {
	v, ok := e.properties[name]
	return v, ok
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port      int      // Uses a free port if 0
	Transport string   // Defaults to "sse"
	AuthType  string   // Defaults to "none"
	APIKeys   []string // Used with AuthType "apikey"
	Host      string   // Defaults to "localhost"
	IndexDir  string   // Required
	RootsFile string
}

// NewTestFlags creates a parsed flag set pointing the application at a
// test index
func NewTestFlags(t testing.TB, opts FlagOptions) *pflag.FlagSet {
	t.Helper()

	if opts.IndexDir == "" {
		t.Fatal("FlagOptions.IndexDir is required")
	}
	if opts.Port == 0 {
		opts.Port = MustGetFreePort(t)
	}
	if opts.Transport == "" {
		opts.Transport = "sse"
	}
	if opts.AuthType == "" {
		opts.AuthType = "none"
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	args := []string{
		"--port", fmt.Sprintf("%d", opts.Port),
		"--transport", opts.Transport,
		"--auth-type", opts.AuthType,
		"--host", opts.Host,
		"--index-dir", opts.IndexDir,
		"--index-lock-timeout", "5s",
		"--spider-retry-delay", "1ms",
	}
	if len(opts.APIKeys) > 0 {
		args = append(args, "--auth-api-keys", strings.Join(opts.APIKeys, ","))
	}
	if opts.RootsFile != "" {
		args = append(args, "--spider-roots-file", opts.RootsFile)
	}
	if err := flags.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return flags
}

// Server runs `redx serve` over SSE in the background
type Server struct {
	flags  *pflag.FlagSet
	params app.RunParams
	cancel context.CancelFunc
	errCh  chan error
}

// NewServer creates a server service. Its flags must select the SSE transport.
func NewServer(flags *pflag.FlagSet, params app.RunParams) *Server {
	return &Server{flags: flags, params: params}
}

func (s *Server) GetName() string {
	return "redx-serve"
}

// Start runs the server and waits until /health answers. It reports the
// server URL as "base_url".
func (s *Server) Start() (map[string]any, error) {
	host, _ := s.flags.GetString("host")
	port, _ := s.flags.GetInt("port")
	baseURL := fmt.Sprintf("http://%s:%d", host, port)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.errCh = make(chan error, 1)
	go func() {
		s.errCh <- app.RunWithDeps(ctx, s.params, s.flags, "test")
	}()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-s.errCh:
			cancel()
			return nil, fmt.Errorf("server exited: %w", err)
		case <-time.After(20 * time.Millisecond):
		}

		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return map[string]any{"base_url": baseURL}, nil
			}
		}
	}

	cancel()
	return nil, errors.New("server did not become healthy")
}

// Stop cancels the server and waits for it to exit
func (s *Server) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case err := <-s.errCh:
		return err
	case <-time.After(10 * time.Second):
		return errors.New("server did not stop")
	}
}
