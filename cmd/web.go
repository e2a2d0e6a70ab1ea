package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/coursemate/coursemate/internal/config"
	"github.com/coursemate/coursemate/internal/web"
)

// runWeb serves the chat frontend. It holds no credentials; API calls are
// proxied to the API service under /api/.
func runWeb() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateWeb(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	webServer, err := web.New(cfg.APIBaseURL(), logger.With("component", "web"))
	if err != nil {
		return fmt.Errorf("creating web server: %w", err)
	}
	srv := webServer.NewHTTPServer(cfg.WebAddr)

	logger.Info("web frontend ready", "addr", cfg.WebAddr, "api", cfg.APIBaseURL())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down web frontend")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
