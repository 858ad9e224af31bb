package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/idempotency"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/kernel"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/config"
	"github.com/r3e-labs/inmarket-pipeline/internal/scheduler"
)

func recordingPipeline(name string, calls *int) kernel.Pipeline {
	return kernel.Pipeline{
		Name: name,
		Steps: []kernel.Step{{
			Name: "record",
			Run: func(ctx context.Context, rc *kernel.RunContext) (int64, error) {
				*calls++
				return 1, nil
			},
		}},
	}
}

func testScheduler(t *testing.T, pipelines map[string]kernel.Pipeline) *scheduler.Scheduler {
	t.Helper()
	k := kernel.New(idempotency.NewStore(), nil, nil)
	return scheduler.New(k, pipelines, config.WatchlistConfig{Indices: []string{"NIFTY 50"}}, nil)
}

func TestTrigger_RunsNamedPipelineImmediately(t *testing.T) {
	var calls int
	s := testScheduler(t, map[string]kernel.Pipeline{
		"equity_daily": recordingPipeline("equity_daily", &calls),
	})

	run, err := s.Trigger(context.Background(), "equity_daily", map[string]interface{}{"date": time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "equity_daily", run.PipelineName)
}

func TestTrigger_UnknownPipelineErrors(t *testing.T) {
	s := testScheduler(t, map[string]kernel.Pipeline{})
	_, err := s.Trigger(context.Background(), "does_not_exist", nil)
	assert.Error(t, err)
}

func TestList_ReturnsSortedPipelineNames(t *testing.T) {
	var calls int
	s := testScheduler(t, map[string]kernel.Pipeline{
		"option_chain":  recordingPipeline("option_chain", &calls),
		"bulk_block_deals": recordingPipeline("bulk_block_deals", &calls),
		"equity_daily":  recordingPipeline("equity_daily", &calls),
	})

	assert.Equal(t, []string{"bulk_block_deals", "equity_daily", "option_chain"}, s.List())
}

func TestStart_SkipsExpressionsWithNoMatchingPipeline(t *testing.T) {
	var calls int
	s := testScheduler(t, map[string]kernel.Pipeline{
		"equity_daily": recordingPipeline("equity_daily", &calls),
	})

	err := s.Start(context.Background(), map[string]string{
		"equity_daily":     "0 18 * * 1-5",
		"trading_calendar": "0 6 1 1,4,7,10 *",
	})
	require.NoError(t, err)
	defer s.Stop(context.Background())

	require.NoError(t, s.Start(context.Background(), map[string]string{"equity_daily": "0 18 * * 1-5"}), "Start must be idempotent")
}

func TestStart_InvalidCronExpressionErrors(t *testing.T) {
	var calls int
	s := testScheduler(t, map[string]kernel.Pipeline{
		"equity_daily": recordingPipeline("equity_daily", &calls),
	})

	err := s.Start(context.Background(), map[string]string{"equity_daily": "not a cron expression"})
	assert.Error(t, err)
}
