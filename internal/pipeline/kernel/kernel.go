// Package kernel composes the fetch/parse/validate/write/dedup/load
// stages (internal/pipeline/{fetcher,parser,validator,writer,dedup,
// corpaction,warehouse}) into the ordered task graph of one pipeline run,
// per spec §2 and §5's concurrency model.
//
// Grounded on infrastructure/service/runner.go's Run: that function
// resolves a service type, initializes shared infrastructure in an
// explicit order, constructs and starts the service, then blocks for a
// graceful shutdown. Kernel generalizes the same shape from "HTTP service
// with routes" to "ETL run with ordered steps": RunPipeline walks a
// fixed, ordered Step list instead of starting an http.Server, records a
// StepMetrics entry per step the way runner.go's graceful-shutdown path
// logs one outcome per lifecycle phase, and aborts the remaining steps on
// the first failing one rather than degrading gracefully — an ETL run has
// no meaningful "partial success" the way an HTTP server tolerates one
// failed dependency init.
package kernel

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/fetcher"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/idempotency"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/keylock"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/logging"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/metrics"
)

// DefaultConcurrency is the bounded worker-pool size for independent
// fetches within one pipeline run (e.g. one option-chain snapshot per
// underlying symbol), per §5.
const DefaultConcurrency = 4

// RunContext carries one run's scoped state between steps: the
// caller-supplied parameters (trade date, symbols, index name, ...) and a
// bag of intermediate values each step reads and writes (frames, parse
// results, row counts) — the kernel's equivalent of runner.go's
// SharedDeps, built up incrementally instead of all at once.
type RunContext struct {
	RunID        string
	PipelineName string
	Params       map[string]interface{}
	Logger       *logging.Logger

	bag map[string]interface{}
}

func newRunContext(runID, pipelineName string, params map[string]interface{}, logger *logging.Logger) *RunContext {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &RunContext{
		RunID:        runID,
		PipelineName: pipelineName,
		Params:       params,
		Logger:       logger,
		bag:          make(map[string]interface{}),
	}
}

// Set stores a value under key for later steps to retrieve.
func (rc *RunContext) Set(key string, value interface{}) { rc.bag[key] = value }

// Get retrieves a value previously stored with Set.
func (rc *RunContext) Get(key string) (interface{}, bool) {
	v, ok := rc.bag[key]
	return v, ok
}

// ParamString returns Params[key] as a string, or "" if absent or not a string.
func (rc *RunContext) ParamString(key string) string {
	if v, ok := rc.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ParamTime returns Params[key] as a time.Time, or the zero time if
// absent or not a time.Time.
func (rc *RunContext) ParamTime(key string) time.Time {
	if v, ok := rc.Params[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// IdempotencyTarget is the (output_path, key) a step's irreversible
// action is gated on, per §4.1. A step with no IdempotencyTarget always
// runs.
type IdempotencyTarget struct {
	OutputPath func(rc *RunContext) string
	Key        func(rc *RunContext) string
}

// StepFunc performs one step's work and returns the row count it
// produced or consumed, for StepMetrics.Rows.
type StepFunc func(ctx context.Context, rc *RunContext) (int64, error)

// Step is one named unit of a Pipeline's ordered task graph.
type Step struct {
	Name       string
	Idempotent *IdempotencyTarget
	Run        StepFunc
}

func (s Step) gate(rc *RunContext) (outputPath, key string, gated bool) {
	if s.Idempotent == nil {
		return "", "", false
	}
	return s.Idempotent.OutputPath(rc), s.Idempotent.Key(rc), true
}

// Pipeline is a named, ordered sequence of steps — the unit the
// scheduler triggers and the kernel runs start to finish.
type Pipeline struct {
	Name  string
	Steps []Step
}

// Kernel runs Pipelines, recording per-step events via logging, per-step
// and per-flow outcomes via metrics, and consulting an idempotency.Store
// before any step gated with an IdempotencyTarget.
type Kernel struct {
	Markers     *idempotency.Store
	Logger      *logging.Logger
	Metrics     *metrics.PipelineMetrics
	Concurrency int

	// serialize, when non-nil, forces one in-flight run per pipeline
	// name. Optional: see internal/pipeline/keylock's doc comment for why
	// correctness never depends on this.
	serialize *keylock.Registry
}

// New creates a Kernel. markers, logger, and pm may all be nil for
// ad-hoc/test use; New substitutes safe defaults.
func New(markers *idempotency.Store, logger *logging.Logger, pm *metrics.PipelineMetrics) *Kernel {
	if markers == nil {
		markers = idempotency.NewStore()
	}
	if logger == nil {
		logger = logging.NewFromEnv("pipeline-kernel")
	}
	return &Kernel{
		Markers:     markers,
		Logger:      logger,
		Metrics:     pm,
		Concurrency: DefaultConcurrency,
	}
}

// NewFromEnv is New plus: if PIPELINE_SERIALIZE_RUNS is truthy, same-name
// pipeline runs are serialized via an in-process keylock.Registry.
func NewFromEnv(markers *idempotency.Store, logger *logging.Logger, pm *metrics.PipelineMetrics) *Kernel {
	k := New(markers, logger, pm)
	if serializeRunsEnabled() {
		k.serialize = keylock.New()
	}
	return k
}

func serializeRunsEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("PIPELINE_SERIALIZE_RUNS"))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// RunPipeline executes p's steps in order against a fresh RunContext
// built from params, returning the completed model.PipelineRun record.
// The first step to fail aborts the remaining steps; RunPipeline itself
// returns the wrapped step error in that case, alongside the partially
// populated run record (status FAILED, PerStepMetrics up to and including
// the failing step).
func (k *Kernel) RunPipeline(ctx context.Context, p Pipeline, params map[string]interface{}) (model.PipelineRun, error) {
	if k.serialize != nil {
		unlock := k.serialize.Lock(p.Name)
		defer unlock()
	}

	runID := uuid.NewString()
	rc := newRunContext(runID, p.Name, params, k.Logger)

	run := model.PipelineRun{
		RunID:        runID,
		PipelineName: p.Name,
		Parameters:   params,
		StartTime:    time.Now().UTC(),
	}

	k.logPipelineStart(rc)

	for _, step := range p.Steps {
		if outputPath, key, gated := step.gate(rc); gated {
			if marker, err := k.Markers.Read(outputPath, key); err == nil {
				run.PerStepMetrics = append(run.PerStepMetrics, model.StepMetrics{
					Step: step.Name,
					Rows: marker.Rows,
				})
				k.logIdempotentSkip(rc, step.Name, marker.Rows)
				continue
			}
		}

		started := time.Now()
		rows, err := step.Run(ctx, rc)
		duration := time.Since(started)

		sm := model.StepMetrics{Step: step.Name, Rows: rows, Duration: duration}
		if err != nil {
			sm.Error = err.Error()
			run.PerStepMetrics = append(run.PerStepMetrics, sm)
			k.logStepResult(rc, step.Name, rows, duration, err)

			run.EndTime = time.Now().UTC()
			run.Status = model.RunFailed
			k.recordFlow(p.Name, "failed", run.EndTime.Sub(run.StartTime))
			k.logPipelineEnd(rc, string(run.Status), run.EndTime.Sub(run.StartTime), totalRows(run))
			return run, fmt.Errorf("kernel: pipeline %s step %s: %w", p.Name, step.Name, err)
		}

		run.PerStepMetrics = append(run.PerStepMetrics, sm)
		k.logStepResult(rc, step.Name, rows, duration, nil)
	}

	run.EndTime = time.Now().UTC()
	run.Status = model.RunSuccess
	k.recordFlow(p.Name, "success", run.EndTime.Sub(run.StartTime))
	k.logPipelineEnd(rc, string(run.Status), run.EndTime.Sub(run.StartTime), totalRows(run))
	return run, nil
}

func totalRows(run model.PipelineRun) int64 {
	var total int64
	for _, sm := range run.PerStepMetrics {
		total += sm.Rows
	}
	return total
}

func (k *Kernel) recordFlow(pipelineName, status string, d time.Duration) {
	if k.Metrics != nil {
		k.Metrics.RecordFlowDuration(pipelineName, status, d)
	}
}

func (k *Kernel) logPipelineStart(rc *RunContext) {
	if k.Logger == nil {
		return
	}
	k.Logger.LogPipelineStart(context.Background(), rc.RunID, rc.PipelineName)
}

func (k *Kernel) logPipelineEnd(rc *RunContext, status string, duration time.Duration, rows int64) {
	if k.Logger == nil {
		return
	}
	k.Logger.LogPipelineEnd(context.Background(), rc.RunID, rc.PipelineName, status, duration, rows)
}

func (k *Kernel) logStepResult(rc *RunContext, step string, rows int64, duration time.Duration, err error) {
	if k.Logger == nil {
		return
	}
	k.Logger.LogStepResult(context.Background(), rc.RunID, rc.PipelineName, step, rows, duration, err)
}

func (k *Kernel) logIdempotentSkip(rc *RunContext, step string, rows int64) {
	if k.Logger == nil {
		return
	}
	k.Logger.LogIdempotentSkip(context.Background(), rc.RunID, rc.PipelineName, step, rows)
}

// RunConcurrent runs fn once per item with at most Concurrency (default
// DefaultConcurrency) in flight, via fetcher.FanOut — the bounded
// worker-pool fan-out for independent per-symbol/per-index work within
// one pipeline step, per §5.
func RunConcurrent[T any, R any](ctx context.Context, k *Kernel, items []T, fn func(context.Context, T) (R, error)) ([]R, []error) {
	concurrency := DefaultConcurrency
	if k != nil && k.Concurrency > 0 {
		concurrency = k.Concurrency
	}
	return fetcher.FanOut(ctx, items, concurrency, fn)
}
