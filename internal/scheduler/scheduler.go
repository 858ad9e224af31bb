// Package scheduler drives kernel pipeline runs off cron expressions, per
// §6.3. Grounded on internal/marble/worker.go's WorkerGroup: a
// mutex-guarded collection of named background tasks with an explicit
// Start/Stop lifecycle, generalized from "run fn every fixed interval" to
// "run fn on a cron schedule" via github.com/robfig/cron/v3, which the
// teacher already depends on for automation-trigger parsing
// (services/automation) without ever wiring a live cron.Cron instance.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/kernel"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/config"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/logging"
)

// ParamsBuilder derives one run's Params map for a scheduled firing at
// "now" — e.g. equity_daily's "date" is the firing instant (the same
// trading day as the 18:00 IST firing), while option_chain also receives
// the watchlist's underlyings.
type ParamsBuilder func(now time.Time, watchlist config.WatchlistConfig) map[string]interface{}

// defaultParamsBuilders covers every pipeline BuildPipelines registers.
// index_constituents and option_chain fan out over the configured
// watchlist; everything else is keyed by the firing date.
func defaultParamsBuilders() map[string]ParamsBuilder {
	dateParams := func(now time.Time, _ config.WatchlistConfig) map[string]interface{} {
		return map[string]interface{}{"date": now}
	}
	return map[string]ParamsBuilder{
		"symbol_master":    dateParams,
		"equity_daily":     dateParams,
		"bulk_block_deals": dateParams,
		"combined_equity":  dateParams,
		"index_constituents": func(now time.Time, wl config.WatchlistConfig) map[string]interface{} {
			return map[string]interface{}{"date": now, "indices": wl.Indices}
		},
		"option_chain": func(now time.Time, wl config.WatchlistConfig) map[string]interface{} {
			return map[string]interface{}{"date": now, "underlyings": wl.Underlyings}
		},
	}
}

// Scheduler registers one cron entry per pipeline and triggers
// Kernel.RunPipeline on each firing, logging the outcome. It never panics
// out of a firing: a pipeline run error is logged and the scheduler keeps
// ticking, since one bad run must not take down the whole process.
type Scheduler struct {
	mu        sync.Mutex
	cron      *cron.Cron
	kernel    *kernel.Kernel
	pipelines map[string]kernel.Pipeline
	watchlist config.WatchlistConfig
	builders  map[string]ParamsBuilder
	logger    *logging.Logger
	entries   map[string]cron.EntryID
	running   bool
}

// New builds a Scheduler for pipelines. Scheduling happens in Start, whose
// cronExpressions (typically config.DefaultCronExpressions()) schedule each
// entry whose key has a matching pipeline. A pipeline name present in
// pipelines but absent from cronExpressions is registered but never fires
// automatically — Trigger still runs it on demand.
func New(k *kernel.Kernel, pipelines map[string]kernel.Pipeline, watchlist config.WatchlistConfig, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewFromEnv("pipeline-scheduler")
	}
	return &Scheduler{
		cron:      cron.New(),
		kernel:    k,
		pipelines: pipelines,
		watchlist: watchlist,
		builders:  defaultParamsBuilders(),
		logger:    logger,
		entries:   make(map[string]cron.EntryID),
	}
}

// Start registers a cron entry for every pipeline name present in both
// p.pipelines and cronExpressions, then starts the cron scheduler's
// background goroutine. Start is idempotent: calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context, cronExpressions map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	for name, expr := range cronExpressions {
		pipeline, ok := s.pipelines[name]
		if !ok {
			continue
		}
		name, pipeline := name, pipeline
		id, err := s.cron.AddFunc(expr, func() {
			s.fire(ctx, name, pipeline)
		})
		if err != nil {
			return fmt.Errorf("scheduler: register %s (%q): %w", name, expr, err)
		}
		s.entries[name] = id
	}

	s.cron.Start()
	s.running = true
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight firing to
// finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.running = false
}

func (s *Scheduler) fire(ctx context.Context, name string, pipeline kernel.Pipeline) {
	build := s.builders[name]
	if build == nil {
		build = func(now time.Time, _ config.WatchlistConfig) map[string]interface{} {
			return map[string]interface{}{"date": now}
		}
	}
	params := build(time.Now().UTC(), s.watchlist)
	run, err := s.kernel.RunPipeline(ctx, pipeline, params)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{"pipeline": name, "run_id": run.RunID, "error": err.Error()}).
			Error("scheduled pipeline run failed")
		return
	}
	s.logger.WithFields(map[string]interface{}{"pipeline": name, "run_id": run.RunID, "status": string(run.Status)}).
		Info("scheduled pipeline run completed")
}

// Trigger runs pipeline name immediately with params, independent of its
// cron schedule, for operator-initiated runs (cmd/pipelinectl trigger).
func (s *Scheduler) Trigger(ctx context.Context, name string, params map[string]interface{}) (model.PipelineRun, error) {
	pipeline, ok := s.pipelines[name]
	if !ok {
		return model.PipelineRun{}, fmt.Errorf("scheduler: unknown pipeline %q", name)
	}
	return s.kernel.RunPipeline(ctx, pipeline, params)
}

// List returns every registered pipeline name in sorted order, for
// cmd/pipelinectl list.
func (s *Scheduler) List() []string {
	names := make([]string, 0, len(s.pipelines))
	for name := range s.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
