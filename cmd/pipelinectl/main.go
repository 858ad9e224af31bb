// Command pipelinectl is the operator CLI for the ingestion pipeline:
// deploy registers every pipeline's cron schedule and blocks until
// stopped, trigger runs one pipeline immediately, and list shows what's
// registered. Grounded on NimbleMarkets/dbn-go/cmd/dbn-go-hist's
// package-level cobra.Command vars wired together in main via AddCommand,
// since the teacher's own cmd/slctl uses the stdlib flag package instead
// of cobra (already a module dependency here for no in-tree user).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/bootstrap"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/config"
	"github.com/r3e-labs/inmarket-pipeline/internal/scheduler"
)

var tradeDateFlag string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "pipelinectl operates the market-data ingestion pipeline.",
	Long:  "pipelinectl operates the market-data ingestion pipeline: deploy its cron schedule, trigger a run on demand, or list what's registered.",
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Registers every pipeline's cron schedule and blocks until SIGINT/SIGTERM.",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap.New(config.Load())
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		s := scheduler.New(app.Kernel, app.Pipelines, app.Config.Watchlist, app.Logger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := s.Start(ctx, app.Config.Scheduler.CronExpressions); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		app.Logger.WithFields(map[string]interface{}{"pipelines": s.List()}).Info("scheduler deployed")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
		return nil
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger <pipeline>",
	Short: "Runs one pipeline immediately, outside its cron schedule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		app, err := bootstrap.New(config.Load())
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		s := scheduler.New(app.Kernel, app.Pipelines, app.Config.Watchlist, app.Logger)

		date, err := resolveTradeDate(tradeDateFlag)
		if err != nil {
			return err
		}
		params := map[string]interface{}{
			"date":        date,
			"indices":     app.Config.Watchlist.Indices,
			"underlyings": app.Config.Watchlist.Underlyings,
		}

		run, err := s.Trigger(cmd.Context(), name, params)
		if err != nil {
			return err
		}
		fmt.Printf("run_id=%s pipeline=%s status=%s rows=%d\n", run.RunID, run.PipelineName, run.Status, totalRows(run))
		if run.Status != "SUCCESS" {
			os.Exit(1)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists every pipeline this build knows how to run.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap.New(config.Load())
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		s := scheduler.New(app.Kernel, app.Pipelines, app.Config.Watchlist, app.Logger)
		for _, name := range s.List() {
			expr := app.Config.Scheduler.CronExpressions[name]
			if expr == "" {
				expr = "(manual trigger only)"
			}
			fmt.Printf("%-20s %s\n", name, expr)
		}
		return nil
	},
}

func init() {
	triggerCmd.Flags().StringVarP(&tradeDateFlag, "date", "d", "", "Trade date (YYYY-MM-DD); defaults to today (UTC)")
	rootCmd.AddCommand(deployCmd, triggerCmd, listCmd)
}

func resolveTradeDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", trimmed)
}

func totalRows(run model.PipelineRun) int64 {
	var total int64
	for _, sm := range run.PerStepMetrics {
		total += sm.Rows
	}
	return total
}
