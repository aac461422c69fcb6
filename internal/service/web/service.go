package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/swdee/go-motionwatch/internal/logger"
)

// HTTPService runs an http.Server under a supervisor
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server, shutdownTimeout bounds the graceful stop
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration) *HTTPService {

	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	return &HTTPService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
	}
}

// String names the service for the supervisor
func (h *HTTPService) String() string {
	return "http-server"
}

// Serve listens until ctx is done then shuts the server down gracefully
func (h *HTTPService) Serve(ctx context.Context) error {

	errCh := make(chan error, 1)

	go func() {
		logger.Infof(ctx, "Listening on %s", h.server.Addr)
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return err
		}

		return ctx.Err()
	}
}
