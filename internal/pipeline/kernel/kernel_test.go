package kernel_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/idempotency"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/kernel"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
)

func testKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	return kernel.New(idempotency.NewStore(), nil, nil)
}

func recordingStep(name string, order *[]string, rows int64) kernel.Step {
	return kernel.Step{
		Name: name,
		Run: func(ctx context.Context, rc *kernel.RunContext) (int64, error) {
			*order = append(*order, name)
			return rows, nil
		},
	}
}

func TestRunPipeline_RunsStepsInOrder(t *testing.T) {
	var order []string
	p := kernel.Pipeline{
		Name: "ordered",
		Steps: []kernel.Step{
			recordingStep("first", &order, 1),
			recordingStep("second", &order, 2),
			recordingStep("third", &order, 3),
		},
	}

	run, err := testKernel(t).RunPipeline(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, model.RunSuccess, run.Status)
	require.Len(t, run.PerStepMetrics, 3)
	assert.Equal(t, "first", run.PerStepMetrics[0].Step)
	assert.EqualValues(t, 1, run.PerStepMetrics[0].Rows)
	assert.EqualValues(t, 2, run.PerStepMetrics[1].Rows)
	assert.EqualValues(t, 3, run.PerStepMetrics[2].Rows)
}

func TestRunPipeline_AbortsRemainingStepsOnFirstFailure(t *testing.T) {
	var order []string
	p := kernel.Pipeline{
		Name: "fails-midway",
		Steps: []kernel.Step{
			recordingStep("first", &order, 1),
			{
				Name: "second",
				Run: func(ctx context.Context, rc *kernel.RunContext) (int64, error) {
					order = append(order, "second")
					return 0, fmt.Errorf("boom")
				},
			},
			recordingStep("third", &order, 3),
		},
	}

	run, err := testKernel(t).RunPipeline(context.Background(), p, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"first", "second"}, order, "third must not run after second fails")
	assert.Equal(t, model.RunFailed, run.Status)
	require.Len(t, run.PerStepMetrics, 2)
	assert.Equal(t, "second", run.PerStepMetrics[1].Step)
	assert.NotEmpty(t, run.PerStepMetrics[1].Error)
}

func TestRunPipeline_SkipsIdempotentStepWhenMarkerExists(t *testing.T) {
	dir := t.TempDir()
	outputPath := dir + "/normalized_equity_ohlc/year=2024/month=01/day=15"
	store := idempotency.NewStore()
	require.NoError(t, store.RecordComplete(outputPath, "2024-01-15", 42, nil))

	k := kernel.New(store, nil, nil)

	var ran bool
	p := kernel.Pipeline{
		Name: "gated",
		Steps: []kernel.Step{
			{
				Name: "write",
				Idempotent: &kernel.IdempotencyTarget{
					OutputPath: func(rc *kernel.RunContext) string { return outputPath },
					Key:        func(rc *kernel.RunContext) string { return "2024-01-15" },
				},
				Run: func(ctx context.Context, rc *kernel.RunContext) (int64, error) {
					ran = true
					return 999, nil
				},
			},
		},
	}

	run, err := k.RunPipeline(context.Background(), p, nil)
	require.NoError(t, err)
	assert.False(t, ran, "gated step must not run when a marker already exists")
	require.Len(t, run.PerStepMetrics, 1)
	assert.EqualValues(t, 42, run.PerStepMetrics[0].Rows, "skipped step reports the marker's row count, not the step's own")
}

func TestRunPipeline_RunsGatedStepWhenNoMarkerExists(t *testing.T) {
	dir := t.TempDir()
	outputPath := dir + "/bulk_block_deals/year=2024/month=01/day=15"
	k := kernel.New(idempotency.NewStore(), nil, nil)

	var ran bool
	p := kernel.Pipeline{
		Name: "ungated-yet",
		Steps: []kernel.Step{
			{
				Name: "write",
				Idempotent: &kernel.IdempotencyTarget{
					OutputPath: func(rc *kernel.RunContext) string { return outputPath },
					Key:        func(rc *kernel.RunContext) string { return "2024-01-15" },
				},
				Run: func(ctx context.Context, rc *kernel.RunContext) (int64, error) {
					ran = true
					return 7, nil
				},
			},
		},
	}

	run, err := k.RunPipeline(context.Background(), p, nil)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.EqualValues(t, 7, run.PerStepMetrics[0].Rows)
}

func TestRunPipeline_BagPassesValuesBetweenSteps(t *testing.T) {
	p := kernel.Pipeline{
		Name: "bag",
		Steps: []kernel.Step{
			{
				Name: "produce",
				Run: func(ctx context.Context, rc *kernel.RunContext) (int64, error) {
					rc.Set("raw", []byte("hello"))
					return 0, nil
				},
			},
			{
				Name: "consume",
				Run: func(ctx context.Context, rc *kernel.RunContext) (int64, error) {
					v, ok := rc.Get("raw")
					require.True(t, ok)
					assert.Equal(t, []byte("hello"), v)
					return 1, nil
				},
			},
		},
	}

	run, err := testKernel(t).RunPipeline(context.Background(), p, map[string]interface{}{"date": time.Now()})
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run.Status)
}

func TestRunConcurrent_BoundsInFlightWork(t *testing.T) {
	k := testKernel(t)
	k.Concurrency = 2

	var inFlight, maxInFlight int32
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	results, errs := kernel.RunConcurrent(context.Background(), k, items, func(ctx context.Context, item int) (int, error) {
		current := atomic.AddInt32(&inFlight, 1)
		for {
			observedMax := atomic.LoadInt32(&maxInFlight)
			if current <= observedMax || atomic.CompareAndSwapInt32(&maxInFlight, observedMax, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return item * 2, nil
	})

	assert.Empty(t, errs)
	require.Len(t, results, 10)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxInFlight)), 2, "RunConcurrent must respect Kernel.Concurrency")
}

func TestRunConcurrent_DefaultsWhenKernelConcurrencyUnset(t *testing.T) {
	items := []int{1, 2, 3}
	results, errs := kernel.RunConcurrent(context.Background(), nil, items, func(ctx context.Context, item int) (int, error) {
		return item, nil
	})
	assert.Empty(t, errs)
	assert.Len(t, results, 3)
}
