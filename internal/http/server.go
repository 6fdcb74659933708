package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/idmx-dev/poolhouse/internal/observability/logger"
)

// Start levanta el servidor y lo apaga graceful cuando ctx se cancela.
// El drain tiene un tope de 10s; pasado eso las conexiones vivas se cortan.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Named("http").Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
