// Package bootstrap wires the shared infrastructure every cmd/ entrypoint
// needs into one kernel.Kernel/kernel.Deps pair: concrete fetchers wrapped
// with retry/circuit-breaker policy, the Parquet writer, a best-effort
// ClickHouse loader, and the pipeline metrics/logging the kernel records
// against. Grounded on infrastructure/service/runner.go's startup sequence
// (init logging, init metrics, init storage, init dependent services, then
// build the thing that runs them) adapted from "HTTP service + routes" to
// "kernel + pipelines."
package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/circuitbreaker"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/fetcher"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/idempotency"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/kernel"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/retrypolicy"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/warehouse"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/writer"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/config"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/logging"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/metrics"
)

// App bundles the infrastructure shared by every cmd/ entrypoint: the
// kernel, the pipeline registry, and the pieces an admin HTTP surface
// wants direct access to (logger, metrics, warehouse reachability).
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Metrics    *metrics.PipelineMetrics
	Kernel     *kernel.Kernel
	Deps       *kernel.Deps
	Pipelines  map[string]kernel.Pipeline
	Warehouse  *warehouse.Loader // nil when ClickHouse was unreachable at startup
}

// New builds an App from cfg: every concrete fetcher from
// internal/pipeline/fetcher/sources.go, wrapped in fetcher.Resilient per
// source's retry/breaker settings; a Parquet writer; and a best-effort
// warehouse loader (a dial failure is logged and the loader left nil, per
// LoadStep's "warehouse load is best-effort relative to the lake write").
func New(cfg *config.Config) (*App, error) {
	logger := logging.NewFromEnv("inmarket-pipeline")
	pm := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), logger)

	fetchers, err := buildFetchers(cfg, breakers, logger)
	if err != nil {
		return nil, err
	}

	w := writer.New()

	loader, err := warehouse.Open(warehouse.Options{
		Host:         cfg.Warehouse.Host,
		Port:         cfg.Warehouse.Port,
		HTTPPort:     cfg.Warehouse.HTTPPort,
		User:         cfg.Warehouse.User,
		Password:     cfg.Warehouse.Password,
		Database:     cfg.Warehouse.Database,
		PreferNative: cfg.Warehouse.PreferNativeProtocol,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error(), "host": cfg.Warehouse.Host}).
			Warn("clickhouse unreachable at startup, warehouse loads will be skipped")
		loader = nil
	}

	deps := &kernel.Deps{
		Config:   cfg,
		Fetchers: fetchers,
		Writer:   w,
		Loader:   loader,
		Metrics:  pm,
	}

	k := kernel.NewFromEnv(idempotency.NewStore(), logger, pm)
	pipelines := kernel.BuildPipelines(k, deps)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   pm,
		Kernel:    k,
		Deps:      deps,
		Pipelines: pipelines,
		Warehouse: loader,
	}, nil
}

func buildFetchers(cfg *config.Config, breakers *circuitbreaker.Registry, logger *logging.Logger) (map[string]fetcher.Fetcher, error) {
	type ctor func(baseURL string) (*fetcher.HTTPFetcher, error)
	specs := map[string]ctor{
		"NSE_EQ_BAR":            fetcher.NewNSEEquityBarFetcher,
		"BSE_EQ_BAR":            fetcher.NewBSEEquityBarFetcher,
		"NSE_BULK_DEALS":        fetcher.NewBulkBlockDealsFetcher,
		"NSE_INDEX_CONSTITUENT": fetcher.NewIndexConstituentFetcher,
		"NSE_OPTION_CHAIN":      fetcher.NewOptionChainFetcher,
		"NSE_MASTER":            fetcher.NewSymbolMasterFetcher,
		"NSE_CORPORATE_ACTIONS": fetcher.NewCorporateActionsFetcher,
	}

	out := make(map[string]fetcher.Fetcher, len(specs))
	for source, build := range specs {
		sc, ok := cfg.Sources[source]
		if !ok {
			continue
		}
		f, err := build(sc.BaseURL)
		if err != nil {
			return nil, err
		}
		retry := retrypolicy.Config{
			MaxAttempts:  sc.RetryMaxAttempts,
			InitialDelay: sc.RetryInitialWait,
			MaxDelay:     sc.RetryMaxWait,
			Multiplier:   2.0,
			Jitter:       0.1,
		}
		out[source] = fetcher.NewResilient(f, breakers, retry)
	}
	return out, nil
}
