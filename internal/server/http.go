package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/the-answerai/mcp-server-salesforce/internal/config"
	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses.
	DefaultWriteTimeout = 60 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
)

// HTTPServer serves the OAuth callback and operational endpoints.
type HTTPServer struct {
	config     config.ServerConfig
	backend    Backend
	gatherer   prometheus.Gatherer
	httpServer *http.Server
	listener   net.Listener
}

// NewHTTPServer creates an HTTP server for backend. gatherer may be nil.
func NewHTTPServer(cfg config.ServerConfig, backend Backend, gatherer prometheus.Gatherer) *HTTPServer {
	return &HTTPServer{
		config:   cfg,
		backend:  backend,
		gatherer: gatherer,
	}
}

// CreateMux builds the route table.
func (s *HTTPServer) CreateMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	if handler := s.backend.OAuthHandler(); handler != nil {
		var limit func(http.Handler) http.Handler
		if s.config.CallbackRate > 0 {
			limit = newIPRateLimiter(s.config.CallbackRate, s.config.CallbackBurst, s.config.TrustProxyHeaders).Middleware
		}
		handler.Register(mux, limit)
		logging.Info("HTTPServer", "Registered OAuth endpoints")
	} else {
		logging.Warn("HTTPServer", "OAuth endpoints disabled: no client id or redirect URI configured")
	}

	return mux
}

// Start binds the listener and serves in the background.
func (s *HTTPServer) Start() error {
	addr := s.config.Address
	if addr == "" {
		addr = config.DefaultServerAddress
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.CreateMux(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTPServer", err, "HTTP server stopped unexpectedly")
		}
	}()

	logging.Info("HTTPServer", "Listening on http://%s", listener.Addr())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *HTTPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
