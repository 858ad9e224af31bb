// Command scheduler is the long-running pipeline daemon: it keeps every
// pipeline's cron schedule ticking via internal/scheduler and serves an
// admin HTTP surface (health, liveness/readiness, Prometheus metrics)
// until SIGINT/SIGTERM. Grounded on cmd/gateway/main.go's router
// construction (mux.Router + LoggingMiddleware + RecoveryMiddleware +
// promhttp.Handler) and infrastructure/service/runner.go's Run for the
// graceful-shutdown blocking loop, generalized into
// internal/platform/servicerunner.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/bootstrap"
	middleware "github.com/r3e-labs/inmarket-pipeline/internal/platform/httpmw"
	service "github.com/r3e-labs/inmarket-pipeline/internal/platform/servicerunner"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/config"
	"github.com/r3e-labs/inmarket-pipeline/internal/scheduler"
)

func main() {
	addr := flag.String("addr", "", "admin HTTP listen address (defaults to :METRICS_PORT)")
	flag.Parse()

	cfg := config.Load()
	app, err := bootstrap.New(cfg)
	if err != nil {
		log.Fatalf("scheduler: bootstrap: %v", err)
	}

	s := scheduler.New(app.Kernel, app.Pipelines, cfg.Watchlist, app.Logger)

	ctx := context.Background()
	if err := s.Start(ctx, cfg.Scheduler.CronExpressions); err != nil {
		log.Fatalf("scheduler: start: %v", err)
	}
	app.Logger.WithFields(map[string]interface{}{"pipelines": s.List()}).Info("scheduler started")

	ready := true
	health := middleware.NewHealthChecker("inmarket-pipeline-scheduler")
	health.RegisterCheck("warehouse", func() error {
		if app.Warehouse == nil {
			return fmt.Errorf("clickhouse loader not configured")
		}
		return nil
	})

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(app.Logger))
	router.Use(middleware.NewRecoveryMiddleware(app.Logger).Handler)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", health.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/livez", middleware.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", middleware.ReadinessHandler(&ready)).Methods(http.MethodGet)

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%d", cfg.Metrics.Port)
	}

	runner := service.NewRunner(listenAddr, router)
	app.Logger.WithFields(map[string]interface{}{"addr": listenAddr}).Info("admin http surface listening")

	if err := runner.Run(ctx); err != nil {
		app.Logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("admin http surface exited with error")
	}

	ready = false
	s.Stop(ctx)
}
