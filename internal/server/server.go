// Package server assembles the MCP server and the HTTP surface of the
// configuration service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/txn2/mcp-element-config/pkg/api"
	"github.com/txn2/mcp-element-config/pkg/health"
	httpmw "github.com/txn2/mcp-element-config/pkg/http"
	"github.com/txn2/mcp-element-config/pkg/middleware"
	"github.com/txn2/mcp-element-config/pkg/platform"
	"github.com/txn2/mcp-element-config/pkg/tools"
)

// Version is set at build time.
var Version = "dev"

const (
	mcpPath           = "/mcp"
	apiPrefix         = "/api/v1/"
	readHeaderTimeout = 10 * time.Second
)

// Server serves the configuration store over MCP and REST.
type Server struct {
	platform *platform.Platform
	mcp      *mcp.Server
	toolkit  *tools.Toolkit
	health   *health.Checker
	handler  http.Handler
}

// New creates the MCP server with the configuration tools registered and
// builds the HTTP handler around it.
func New(p *platform.Platform) *Server {
	cfg := p.Config()
	version := cfg.Server.Version
	if Version != "dev" {
		version = Version
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: cfg.Server.Name, Version: version}, nil)
	mcpServer.AddReceivingMiddleware(middleware.MCPToolCallMiddleware(middleware.NewToolMetrics(p.Registry())))
	toolkit := tools.NewToolkit(p.Service())
	toolkit.RegisterTools(mcpServer)

	checker := health.NewChecker()
	if db := p.DB(); db != nil {
		checker.AddCheck("database", db.PingContext)
	}

	s := &Server{
		platform: p,
		mcp:      mcpServer,
		toolkit:  toolkit,
		health:   checker,
	}
	s.handler = s.buildHandler()
	return s
}

func (s *Server) buildHandler() http.Handler {
	cfg := s.platform.Config()
	metrics := httpmw.NewMetrics(s.platform.Registry())
	withIdentity := httpmw.IdentityMiddleware(cfg.Identity.Header)

	var events api.EventQuerier
	if q, ok := s.platform.AuditLogger().(api.EventQuerier); ok {
		events = q
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", s.health.LivenessHandler())
	mux.Handle("GET /readyz", s.health.ReadinessHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(s.platform.Registry(), promhttp.HandlerOpts{}))
	}
	mux.Handle(apiPrefix, withIdentity(metrics.Wrap("api", api.NewHandler(s.platform.Service(), events))))

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	mux.Handle(mcpPath, withIdentity(metrics.Wrap("mcp", streamable)))
	return mux
}

// MCPServer returns the MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Toolkit returns the registered configuration toolkit.
func (s *Server) Toolkit() *tools.Toolkit {
	return s.toolkit
}

// Health returns the readiness tracker.
func (s *Server) Health() *health.Checker {
	return s.health
}

// Handler returns the HTTP handler serving REST, MCP, health and metrics.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeStdio serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	slog.Info("serving MCP over stdio")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves HTTP until
// ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.platform.Config().Server.Address
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is done, then drains in-flight requests
// within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.health.SetReady()
	slog.Info("starting http server", "addr", ln.Addr().String(), "mcp", mcpPath, "api", apiPrefix)

	select {
	case err := <-errCh:
		s.health.SetDraining()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.health.SetDraining()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.platform.Config().Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}
