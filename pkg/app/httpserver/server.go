// Package httpserver provides lifecycle helpers for the operational HTTP server.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultShutdownTimeout = 30 * time.Second

// ServeAndWait starts srv in a goroutine and blocks until either ctx is
// canceled or the server fails unexpectedly, then shuts down gracefully
// within the given timeout.
func ServeAndWait(ctx context.Context, logger *zap.Logger, srv *http.Server, shutdownTimeout time.Duration) error {
	if srv == nil {
		return fmt.Errorf("nil http server")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	errCh := make(chan error, 1)
	go func() {
		if logger != nil {
			logger.Info("HTTP server listening", zap.String("address", srv.Addr))
		}
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		if logger != nil {
			logger.Info("Shutdown signal received")
		}
	case runErr = <-errCh:
		if runErr != nil && logger != nil {
			logger.Error("HTTP server error", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		if logger != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		return fmt.Errorf("http shutdown: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("http server failed: %w", runErr)
	}

	if logger != nil {
		logger.Info("HTTP server stopped")
	}
	return nil
}
