package gateway

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/config"
	"github.com/milkpudding/gateway/internal/logging"
	"github.com/milkpudding/gateway/internal/middleware"
	"github.com/milkpudding/gateway/internal/watcher"
)

// Server runs the gateway's HTTP listener and owns the route watcher's
// lifecycle.
type Server struct {
	cfg     *config.Config
	httpSrv *http.Server
	watcher *watcher.Watcher
}

// NewServer wraps the gateway in the outer middleware chain and prepares
// the listener. w may be nil when routes are installed by hand (tests).
func NewServer(cfg *config.Config, g *Gateway, w *watcher.Watcher) *Server {
	handler := middleware.NewChain(
		middleware.Recovery(),
		middleware.RequestID(),
	).Then(g)

	return &Server{
		cfg: cfg,
		httpSrv: &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           handler,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		},
		watcher: w,
	}
}

// Run serves until SIGINT/SIGTERM or a listener error, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.watcher != nil {
		go func() {
			if err := s.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("route watcher stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("gateway listening", zap.String("address", s.cfg.Server.Address))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("shutting down", zap.Duration("timeout", s.cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.watcher != nil {
		s.watcher.Close()
	}
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.Info("shutdown complete")
	return nil
}
