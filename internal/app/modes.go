package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/the-answerai/mcp-server-salesforce/internal/server"
	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// RunOptions selects what Run serves.
type RunOptions struct {
	// Stdio additionally serves the MCP tools over stdin/stdout. Run
	// returns when the MCP client disconnects.
	Stdio bool

	// Version is reported to MCP clients.
	Version string
}

// Run serves the OAuth callback endpoints and the sweep scheduler until
// ctx is cancelled, SIGINT or SIGTERM arrives, or the MCP client
// disconnects when serving stdio.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (common in container environments)
func (a *Application) Run(ctx context.Context, opts RunOptions) error {
	settings := a.Settings()

	httpServer := server.NewHTTPServer(settings.Server, a.service, a.service.Gatherer())
	if err := httpServer.Start(); err != nil {
		logging.Error("CLI", err, "Failed to start HTTP server")
		return err
	}

	scheduler, err := server.NewScheduler(settings.Server.SweepSchedule, a.service)
	if err != nil {
		shutdownHTTP(httpServer)
		return err
	}
	scheduler.Start()

	defer func() {
		logging.Info("CLI", "Shutting down")
		scheduler.Stop()
		shutdownHTTP(httpServer)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !opts.Stdio {
		logging.Info("CLI", "Serving. Press Ctrl+C to stop.")
		<-ctx.Done()
		return nil
	}

	mcpServer := server.NewMCPServer(a.service, opts.Version)
	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpServer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("CLI", err, "MCP stdio server stopped")
			return err
		}
		return nil
	}
}

func shutdownHTTP(httpServer *server.HTTPServer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logging.Warn("CLI", "HTTP server shutdown: %v", err)
	}
}
