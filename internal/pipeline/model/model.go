// Package model holds the canonical entities the pipeline moves between
// fetch, parse, validate, write, and load: the envelope shared by every
// normalized event, the source-specific payloads, and the bookkeeping
// records (idempotency markers, validation results, circuit breaker state,
// pipeline runs) that the rest of the system reasons about.
package model

import "time"

// Envelope carries the fields every canonical event shares regardless of
// source.
type Envelope struct {
	EventID       string `json:"event_id"`
	EventTime     int64  `json:"event_time"` // ms since epoch
	IngestTime    int64  `json:"ingest_time"`
	Source        string `json:"source"`
	SchemaVersion string `json:"schema_version"`
	EntityID      string `json:"entity_id"`
}

// EquityBarEvent is the canonical normalized daily-bar row produced by the
// NSE and BSE equity parsers.
type EquityBarEvent struct {
	Envelope

	InstrumentID   string `json:"instrument_id"`
	Symbol         string `json:"symbol"`
	Exchange       string `json:"exchange"`
	ISIN           string `json:"isin"`
	InstrumentType string `json:"instrument_type"`
	Series         string `json:"series"`

	PrevClose       *float64 `json:"prev_close"`
	Open            *float64 `json:"open"`
	High            *float64 `json:"high"`
	Low             *float64 `json:"low"`
	Close           *float64 `json:"close"`
	LastPrice       *float64 `json:"last_price"`
	SettlementPrice *float64 `json:"settlement_price"`

	Volume   int64   `json:"volume"`
	Turnover float64 `json:"turnover"`
	Trades   int64   `json:"trades"`

	AdjustmentFactor float64    `json:"adjustment_factor"`
	AdjustmentDate   *time.Time `json:"adjustment_date"`
	IsTradingDay     bool       `json:"is_trading_day"`

	TradeDate time.Time `json:"trade_date"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Day       int       `json:"day"`
}

// BulkDealType distinguishes bulk from block deal disclosures.
type BulkDealType string

const (
	DealTypeBulk  BulkDealType = "BULK"
	DealTypeBlock BulkDealType = "BLOCK"
)

// TransactionType is the side of a bulk/block deal.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// BulkBlockDealEvent is one side (buy or sell) of an exchange-reported
// large-trade disclosure. Uniqueness key: (Symbol, DealType,
// TransactionType, DealDate).
type BulkBlockDealEvent struct {
	Envelope

	Symbol          string          `json:"symbol"`
	ClientName      string          `json:"client_name"`
	DealType        BulkDealType    `json:"deal_type"`
	TransactionType TransactionType `json:"transaction_type"`
	Quantity        int64           `json:"quantity"`
	Price           float64         `json:"price"`
	Remarks         string          `json:"remarks"`
	DealDate        time.Time       `json:"deal_date"`
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	Day             int             `json:"day"`
}

// ConstituentAction describes how a symbol's index membership changed.
type ConstituentAction string

const (
	ActionAdd      ConstituentAction = "ADD"
	ActionRemove   ConstituentAction = "REMOVE"
	ActionRebalance ConstituentAction = "REBALANCE"
)

// IndexConstituentEvent records one (index, symbol, effective_date)
// membership change.
type IndexConstituentEvent struct {
	Envelope

	IndexName     string            `json:"index_name"`
	Symbol        string            `json:"symbol"`
	Series        string            `json:"series"`
	EffectiveDate time.Time         `json:"effective_date"`
	Action        ConstituentAction `json:"action"`
	Weight        *float64          `json:"weight"`
}

// OptionType is CE (call) or PE (put).
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// OptionChainSnapshotEvent is one strike/expiry/side row of an option
// chain snapshot.
type OptionChainSnapshotEvent struct {
	Envelope

	UnderlyingSymbol string     `json:"underlying_symbol"`
	UnderlyingValue  float64    `json:"underlying_value"`
	ExpiryDate       time.Time  `json:"expiry_date"`
	StrikePrice      float64    `json:"strike_price"`
	OptionType       OptionType `json:"option_type"`

	OpenInterest    int64    `json:"open_interest"`
	ChangeInOI      int64    `json:"change_in_oi"`
	Volume          int64    `json:"volume"`
	ImpliedVol      *float64 `json:"implied_volatility"`
	LastPrice       float64  `json:"last_price"`
	BidPrice        *float64 `json:"bid_price"`
	BidQty          int64    `json:"bid_qty"`
	AskPrice        *float64 `json:"ask_price"`
	AskQty          int64    `json:"ask_qty"`
	SnapshotTime    time.Time `json:"snapshot_time"`
}

// CorporateActionEvent records a declared corporate action (split, bonus,
// dividend, ...) affecting an instrument's price series.
type CorporateActionEvent struct {
	Envelope

	Symbol        string    `json:"symbol"`
	ISIN          string    `json:"isin"`
	ActionType    string    `json:"action_type"`
	ExDate        time.Time `json:"ex_date"`
	RecordDate    *time.Time `json:"record_date"`
	Ratio         string    `json:"ratio"`
	AdjustmentFactor float64 `json:"adjustment_factor"`
}

// IdempotencyMarker records that the write for (OutputPath, Key) has
// completed successfully.
type IdempotencyMarker struct {
	OutputPath string                 `json:"output_path"`
	Key        string                 `json:"key"`
	Rows       int64                  `json:"rows"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Severity classifies a validation violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// ErrorDetail is one rule violation found while validating a frame.
type ErrorDetail struct {
	RowIndex  int      `json:"row_index"`
	Field     string   `json:"field"`
	Message   string   `json:"message"`
	Validator string   `json:"validator"`
	Severity  Severity `json:"severity"`
}

// ValidationResult aggregates every violation found across a frame,
// streamed slice by slice.
type ValidationResult struct {
	TotalRows         int           `json:"total_rows"`
	ValidRows         int           `json:"valid_rows"`
	CriticalFailures  int           `json:"critical_failures"`
	Warnings          int           `json:"warnings"`
	ErrorDetails      []ErrorDetail `json:"error_details"`
	RulesApplied      []string      `json:"rules_applied"`
	Timestamp         time.Time     `json:"timestamp"`
}

// BreakerState is one of the three circuit-breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// CircuitBreakerState is the externally-observable snapshot of one named
// breaker, as reported on the admin surface.
type CircuitBreakerState struct {
	Source          string       `json:"source"`
	State           BreakerState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	LastFailureTime *time.Time   `json:"last_failure_time"`
	FailureThreshold int         `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
}

// RunStatus is the terminal status of a pipeline run.
type RunStatus string

const (
	RunSuccess           RunStatus = "SUCCESS"
	RunFailed            RunStatus = "FAILED"
	RunSkippedIdempotent RunStatus = "SKIPPED_IDEMPOTENT"
)

// StepMetrics records one step's outcome within a PipelineRun.
type StepMetrics struct {
	Step     string        `json:"step"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// PipelineRun is the ephemeral record of one kernel execution.
type PipelineRun struct {
	RunID          string                 `json:"run_id"`
	PipelineName   string                 `json:"pipeline_name"`
	Parameters     map[string]interface{} `json:"parameters"`
	StartTime      time.Time              `json:"start_time"`
	EndTime        time.Time              `json:"end_time"`
	Status         RunStatus              `json:"status"`
	PerStepMetrics []StepMetrics          `json:"per_step_metrics"`
}
