// Package server wires a platform into an HTTP server with graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/txn2/realty-platform/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// NewLogger builds the process logger from the server config.
func NewLogger(w io.Writer, cfg platform.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Server owns a platform and the HTTP server in front of it.
type Server struct {
	platform *platform.Platform
	http     *http.Server
	shutdown time.Duration
}

// New creates the platform from cfg and an HTTP server for it.
func New(ctx context.Context, cfg *platform.Config, opts ...platform.Option) (*Server, error) {
	opts = append([]platform.Option{platform.WithConfig(cfg)}, opts...)
	p, err := platform.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating platform: %w", err)
	}
	return &Server{
		platform: p,
		http: &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           p.Handler(),
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		},
		shutdown: cfg.Server.ShutdownTimeout,
	}, nil
}

// NewWithConfig loads the config file at path and creates a server.
func NewWithConfig(ctx context.Context, path string) (*Server, error) {
	cfg, err := platform.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return New(ctx, cfg)
}

// NewWithDefaults creates a server from the default config and environment.
func NewWithDefaults(ctx context.Context) (*Server, error) {
	cfg, err := platform.DefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}
	return New(ctx, cfg)
}

// Platform returns the underlying platform.
func (s *Server) Platform() *platform.Platform {
	return s.platform
}

// Run starts the platform and serves on the configured address until ctx is
// done, then drains and shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		_ = s.platform.Close()
		return fmt.Errorf("listening on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.platform.Start(ctx); err != nil {
		_ = ln.Close()
		_ = s.platform.Close()
		return fmt.Errorf("starting platform: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "address", ln.Addr().String(), "version", Version)
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		_ = s.platform.Stop(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	slog.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	// Readiness fails first so load balancers stop routing before the listener closes.
	s.platform.Health().SetDraining()
	var errs []error
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down http server: %w", err))
	}
	if err := s.platform.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
