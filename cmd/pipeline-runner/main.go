// Command pipeline-runner executes a single named pipeline once and exits,
// for invocation from an external scheduler (cron, Kubernetes CronJob,
// Airflow) that wants one process per run rather than a long-lived
// daemon. Grounded on cmd/appserver/main.go's flag.String/flag.Bool +
// log.Fatalf startup style.
package main

import (
	"context"
	"flag"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/bootstrap"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/config"
)

func main() {
	pipeline := flag.String("pipeline", "", "pipeline name to run (see pipelinectl list)")
	dateFlag := flag.String("date", "", "trade date YYYY-MM-DD (defaults to today, UTC)")
	indicesFlag := flag.String("indices", "", "comma-separated index names, overriding WATCHLIST_INDICES")
	underlyingsFlag := flag.String("underlyings", "", "comma-separated underlying symbols, overriding WATCHLIST_UNDERLYINGS")
	timeoutFlag := flag.Duration("timeout", 10*time.Minute, "run timeout")
	flag.Parse()

	if strings.TrimSpace(*pipeline) == "" {
		log.Fatal("pipeline-runner: -pipeline is required")
	}

	cfg := config.Load()
	app, err := bootstrap.New(cfg)
	if err != nil {
		log.Fatalf("pipeline-runner: bootstrap: %v", err)
	}

	p, ok := app.Pipelines[*pipeline]
	if !ok {
		log.Fatalf("pipeline-runner: unknown pipeline %q", *pipeline)
	}

	date := time.Now().UTC()
	if trimmed := strings.TrimSpace(*dateFlag); trimmed != "" {
		parsed, err := time.Parse("2006-01-02", trimmed)
		if err != nil {
			log.Fatalf("pipeline-runner: invalid -date: %v", err)
		}
		date = parsed
	}

	indices := cfg.Watchlist.Indices
	if trimmed := strings.TrimSpace(*indicesFlag); trimmed != "" {
		indices = config.SplitAndTrimCSV(trimmed)
	}
	underlyings := cfg.Watchlist.Underlyings
	if trimmed := strings.TrimSpace(*underlyingsFlag); trimmed != "" {
		underlyings = config.SplitAndTrimCSV(trimmed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	run, err := app.Kernel.RunPipeline(ctx, p, map[string]interface{}{
		"date":        date,
		"indices":     indices,
		"underlyings": underlyings,
	})
	if err != nil {
		log.Fatalf("pipeline-runner: %s failed: %v", *pipeline, err)
	}

	var totalRows int64
	for _, sm := range run.PerStepMetrics {
		totalRows += sm.Rows
	}
	log.Printf("pipeline-runner: %s completed run_id=%s status=%s rows=%s", *pipeline, run.RunID, run.Status, strconv.FormatInt(totalRows, 10))
}
