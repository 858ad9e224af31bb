package service

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
)

// Runner is the process skeleton shared by cmd/scheduler and any
// future long-running pipeline process: it serves an admin HTTP surface
// (health, metrics, run-status) and blocks until SIGINT/SIGTERM, then
// shuts the server down gracefully.
type Runner struct {
	Addr            string
	Router          *mux.Router
	ShutdownTimeout time.Duration
}

// NewRunner creates a Runner bound to addr, serving router.
func NewRunner(addr string, router *mux.Router) *Runner {
	return &Runner{
		Addr:            addr,
		Router:          router,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Run starts the HTTP server in the background and blocks until ctx is
// canceled or the process receives SIGINT/SIGTERM, then drains in-flight
// requests within ShutdownTimeout.
func (r *Runner) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              r.Addr,
		Handler:           r.Router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErrCh:
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
