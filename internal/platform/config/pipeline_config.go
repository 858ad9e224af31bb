package config

import "time"

// Config is the pipeline's top-level typed configuration, loaded once at
// process startup via Load and never mutated afterward, per §3.2.
type Config struct {
	Sources    map[string]SourceConfig
	Lake       LakeConfig
	Warehouse  WarehouseConfig
	Scheduler  SchedulerConfig
	Metrics    MetricsConfig
	Watchlist  WatchlistConfig
	Env        string
}

// WatchlistConfig holds the index/underlying symbol lists
// BuildIndexConstituentsPipeline and BuildOptionChainPipeline fan out
// over, per §6.1's "configurable watchlist" requirement.
type WatchlistConfig struct {
	Indices     []string
	Underlyings []string
}

// SourceConfig holds the per-source fetch parameters, expected schema
// version, retry budget, and circuit-breaker thresholds described in
// spec §3.1.
type SourceConfig struct {
	Name             string
	BaseURL          string
	SchemaVersion    string
	RetryMaxAttempts int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// LakeConfig describes the partitioned columnar lake's base path and
// write settings, per §4.7/§6.2.
type LakeConfig struct {
	BasePath        string
	Compression     string // snappy (default), gzip, zstd
	PartitionCols   []string
	QuarantineDir   string
	CoalesceTargetMB    int
	CoalesceThresholdMB int
}

// WarehouseConfig holds the ClickHouse connection settings, per §4.9/§6.3.
type WarehouseConfig struct {
	Host          string
	Port          int
	HTTPPort      int
	User          string
	Password      string
	Database      string
	BatchRows     int
	PreferNativeProtocol bool
}

// SchedulerConfig holds the cron expression for each registered pipeline,
// per §6.3.
type SchedulerConfig struct {
	CronExpressions map[string]string
}

// MetricsConfig holds the Prometheus scrape endpoint's port, per §6.3.
type MetricsConfig struct {
	Port int
}

// DefaultCronExpressions returns the pipeline cron expressions from §6.3,
// expressed in IST (Asia/Kolkata) via the cron library's CRON_TZ prefix,
// since the exchange's trading calendar is IST-native. symbol_master
// runs shortly before equity_daily so the same evening's
// EnrichInstrumentIDStep join sees a fresh reference table.
func DefaultCronExpressions() map[string]string {
	const tz = "CRON_TZ=Asia/Kolkata "
	return map[string]string{
		"symbol_master":      tz + "30 17 * * 1-5",
		"equity_daily":       tz + "0 18 * * 1-5",
		"bulk_block_deals":   tz + "0 15 * * 1-5",
		"trading_calendar":   tz + "0 6 1 1,4,7,10 *",
		"index_constituents": tz + "0 19 * * *",
		"option_chain":       tz + "*/30 9-15 * * 1-5",
		"combined_equity":    tz + "0 20 * * 1-5",
	}
}

// Load builds a Config from environment variables, applying the defaults
// documented in SPEC_FULL.md §1.1. It never panics; callers decide whether
// a missing required value (e.g. CLICKHOUSE_HOST in production) is fatal.
func Load() *Config {
	cfg := &Config{
		Env: GetEnv("PIPELINE_ENV", "development"),
		Lake: LakeConfig{
			BasePath:            GetEnv("LAKE_BASE_PATH", "./data/lake"),
			Compression:         GetEnv("LAKE_COMPRESSION", "snappy"),
			PartitionCols:       []string{"year", "month", "day"},
			QuarantineDir:       GetEnv("LAKE_QUARANTINE_DIR", "./data/lake/_quarantine"),
			CoalesceTargetMB:    GetEnvInt("LAKE_COALESCE_TARGET_MB", 128),
			CoalesceThresholdMB: GetEnvInt("LAKE_COALESCE_THRESHOLD_MB", 10),
		},
		Warehouse: WarehouseConfig{
			Host:                 GetEnv("CLICKHOUSE_HOST", "localhost"),
			Port:                 GetEnvInt("CLICKHOUSE_PORT", 9000),
			HTTPPort:             GetEnvInt("CLICKHOUSE_HTTP_PORT", 8123),
			User:                 GetEnv("CLICKHOUSE_USER", "default"),
			Password:             GetEnv("CLICKHOUSE_PASSWORD", ""),
			Database:             GetEnv("CLICKHOUSE_DATABASE", "market_data"),
			BatchRows:            GetEnvInt("WAREHOUSE_BATCH_ROWS", 100_000),
			PreferNativeProtocol: GetEnvBool("WAREHOUSE_PREFER_NATIVE", true),
		},
		Scheduler: SchedulerConfig{
			CronExpressions: DefaultCronExpressions(),
		},
		Metrics: MetricsConfig{
			Port: GetEnvInt("METRICS_PORT", 9090),
		},
		Sources: defaultSources(),
		Watchlist: WatchlistConfig{
			Indices:     SplitAndTrimCSV(GetEnv("WATCHLIST_INDICES", "NIFTY 50,NIFTY BANK,NIFTY NEXT 50")),
			Underlyings: SplitAndTrimCSV(GetEnv("WATCHLIST_UNDERLYINGS", "NIFTY,BANKNIFTY,RELIANCE,TCS,HDFCBANK")),
		},
	}
	return cfg
}

func defaultSources() map[string]SourceConfig {
	base := func(name, schemaVersion, baseURLEnv, baseURLDefault string) SourceConfig {
		return SourceConfig{
			Name:               name,
			BaseURL:            GetEnv(baseURLEnv, baseURLDefault),
			SchemaVersion:      schemaVersion,
			RetryMaxAttempts:   3,
			RetryInitialWait:   100 * time.Millisecond,
			RetryMaxWait:       10 * time.Second,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		}
	}
	return map[string]SourceConfig{
		"NSE_EQ_BAR":            base("NSE_EQ_BAR", "v1", "NSE_BASE_URL", "https://archives.nseindia.com"),
		"BSE_EQ_BAR":            base("BSE_EQ_BAR", "v1", "BSE_BASE_URL", "https://www.bseindia.com"),
		"NSE_BULK_DEALS":        base("NSE_BULK_DEALS", "v1", "NSE_BASE_URL", "https://www.nseindia.com"),
		"NSE_INDEX_CONSTITUENT": base("NSE_INDEX_CONSTITUENT", "v1", "NSE_BASE_URL", "https://www.nseindia.com"),
		"NSE_OPTION_CHAIN":      base("NSE_OPTION_CHAIN", "v1", "NSE_BASE_URL", "https://www.nseindia.com"),
		"NSE_MASTER":            base("NSE_MASTER", "v1", "NSE_BASE_URL", "https://archives.nseindia.com"),
		"NSE_CORPORATE_ACTIONS": base("NSE_CORPORATE_ACTIONS", "v1", "NSE_BASE_URL", "https://www.nseindia.com"),
	}
}
