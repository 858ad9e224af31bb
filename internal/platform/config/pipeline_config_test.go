package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/inmarket-pipeline/internal/platform/config"
)

func TestLoad_DefaultsWhenEnvUnset(t *testing.T) {
	clearPipelineEnvVars(t)

	cfg := config.Load()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "./data/lake", cfg.Lake.BasePath)
	assert.Equal(t, "snappy", cfg.Lake.Compression)
	assert.Equal(t, "localhost", cfg.Warehouse.Host)
	assert.Equal(t, 9000, cfg.Warehouse.Port)
	assert.Equal(t, 100_000, cfg.Warehouse.BatchRows)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearPipelineEnvVars(t)
	require.NoError(t, os.Setenv("LAKE_BASE_PATH", "/mnt/lake"))
	require.NoError(t, os.Setenv("CLICKHOUSE_HOST", "ch.internal"))
	require.NoError(t, os.Setenv("CLICKHOUSE_PORT", "9440"))
	t.Cleanup(func() {
		os.Unsetenv("LAKE_BASE_PATH")
		os.Unsetenv("CLICKHOUSE_HOST")
		os.Unsetenv("CLICKHOUSE_PORT")
	})

	cfg := config.Load()

	assert.Equal(t, "/mnt/lake", cfg.Lake.BasePath)
	assert.Equal(t, "ch.internal", cfg.Warehouse.Host)
	assert.Equal(t, 9440, cfg.Warehouse.Port)
}

func TestLoad_PopulatesAllSevenSources(t *testing.T) {
	clearPipelineEnvVars(t)
	cfg := config.Load()

	for _, name := range []string{
		"NSE_EQ_BAR", "BSE_EQ_BAR", "NSE_BULK_DEALS",
		"NSE_INDEX_CONSTITUENT", "NSE_OPTION_CHAIN", "NSE_MASTER",
		"NSE_CORPORATE_ACTIONS",
	} {
		src, ok := cfg.Sources[name]
		require.Truef(t, ok, "expected source %s to be configured", name)
		assert.Equal(t, name, src.Name)
		assert.Greater(t, src.RetryMaxAttempts, 0)
		assert.Greater(t, src.BreakerMaxFailures, 0)
	}
}

func TestDefaultCronExpressions_AllSevenPipelinesScheduled(t *testing.T) {
	exprs := config.DefaultCronExpressions()

	for _, name := range []string{
		"equity_daily", "bulk_block_deals", "trading_calendar",
		"index_constituents", "option_chain", "combined_equity",
		"symbol_master",
	} {
		expr, ok := exprs[name]
		require.Truef(t, ok, "expected cron expression for %s", name)
		assert.Contains(t, expr, "CRON_TZ=Asia/Kolkata")
	}
}

func clearPipelineEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"PIPELINE_ENV", "LAKE_BASE_PATH", "LAKE_COMPRESSION", "LAKE_QUARANTINE_DIR",
		"LAKE_COALESCE_TARGET_MB", "LAKE_COALESCE_THRESHOLD_MB",
		"CLICKHOUSE_HOST", "CLICKHOUSE_PORT", "CLICKHOUSE_USER", "CLICKHOUSE_PASSWORD",
		"CLICKHOUSE_DATABASE", "WAREHOUSE_BATCH_ROWS", "WAREHOUSE_PREFER_NATIVE", "METRICS_PORT",
	}
	for _, v := range vars {
		require.NoError(t, os.Unsetenv(v))
	}
}
