// Package warehouse loads a frame.Frame into a ClickHouse table, per spec
// §4.9. Grounded on the other_examples ClickHouse ingestion pipeline
// (Mrhb33-backtest/services/clickhouse/ingest.go) for the idempotency-
// ledger-then-batch-insert shape, upgraded from that example's raw-HTTP
// interface to github.com/ClickHouse/clickhouse-go/v2, which natively
// speaks both the native TCP protocol (port 9000, preferred per §4.9) and
// HTTP — the exact fallback behavior the spec asks for. Idempotency itself
// is left to the destination table engine's own deduplication (e.g.
// ReplacingMergeTree keyed on event_id/trade_date); this loader never
// deletes prior data.
package warehouse

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	pipelineerr "github.com/r3e-labs/inmarket-pipeline/internal/platform/pipelineerr"
)

// DefaultBatchRows is the default row count per insert batch, per §4.9
// step 5.
const DefaultBatchRows = 100_000

// ColumnType is the warehouse-side type family a TableMapping column
// coerces frame values into, per §4.9 step 4.
type ColumnType int

const (
	ColumnString ColumnType = iota
	ColumnInt
	ColumnFloat
	ColumnDate
	ColumnDateTime
	ColumnArray
	ColumnMap
)

// WarehouseColumn declares one destination column: its warehouse-side
// name, type family, and whether it may be null.
type WarehouseColumn struct {
	Name     string
	Type     ColumnType
	Required bool
	Nullable bool
}

// TableMapping is the static per-table column-name mapping from a
// normalized frame's column names to the warehouse's column names, per
// §4.9 step 2.
type TableMapping struct {
	Table   string
	Columns []WarehouseColumn
	// FrameColumn maps a warehouse column name back to the frame column
	// name it's sourced from. Defaults to an identity mapping when absent.
	FrameColumn map[string]string
}

func (m TableMapping) sourceColumn(warehouseCol string) string {
	if m.FrameColumn != nil {
		if src, ok := m.FrameColumn[warehouseCol]; ok {
			return src
		}
	}
	return warehouseCol
}

// Result is what one Load call produced, per §4.9's `{rows, duration}`
// contract.
type Result struct {
	Rows     int64
	Duration time.Duration
}

// LoadOptions configures one Load call.
type LoadOptions struct {
	BatchRows  int
	MaxRetries int
	RetryDelay time.Duration
}

func (o LoadOptions) batchRows() int {
	if o.BatchRows <= 0 {
		return DefaultBatchRows
	}
	return o.BatchRows
}

func (o LoadOptions) maxRetries() int {
	if o.MaxRetries <= 0 {
		return 4
	}
	return o.MaxRetries
}

func (o LoadOptions) retryDelay() time.Duration {
	if o.RetryDelay <= 0 {
		return 500 * time.Millisecond
	}
	return o.RetryDelay
}

// RowScanner is the narrow slice of clickhouse-go's driver.Rows that
// introspect needs. Defining it locally (rather than depending on
// driver.Rows directly) keeps the loader testable with an in-memory fake
// that doesn't have to re-implement the full driver interface.
type RowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// BatchSink is the narrow slice of clickhouse-go's driver.Batch that
// loadBatch needs.
type BatchSink interface {
	Append(v ...interface{}) error
	Send() error
}

// Conn is the narrow slice of clickhouse-go's driver.Conn the loader
// depends on. Exported so tests can supply a fake without a real
// ClickHouse server.
type Conn interface {
	Query(ctx context.Context, query string, args ...interface{}) (RowScanner, error)
	PrepareBatch(ctx context.Context, query string) (BatchSink, error)
	Close() error
}

// connAdapter wraps a real clickhouse.Conn to satisfy Conn; driver.Rows
// and driver.Batch already implement RowScanner/BatchSink structurally.
type connAdapter struct{ conn clickhouse.Conn }

func (a connAdapter) Query(ctx context.Context, query string, args ...interface{}) (RowScanner, error) {
	return a.conn.Query(ctx, query, args...)
}

func (a connAdapter) PrepareBatch(ctx context.Context, query string) (BatchSink, error) {
	return a.conn.PrepareBatch(ctx, query)
}

func (a connAdapter) Close() error { return a.conn.Close() }

// Loader inserts frames into ClickHouse, introspecting each target
// table's real column set before every load.
type Loader struct {
	conn   Conn
	logger *logrus.Logger
}

// NewLoader builds a Loader directly from a Conn, bypassing Open's
// dial/fallback logic. Production callers use Open; tests and any caller
// already holding a connection use NewLoader.
func NewLoader(conn Conn, logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{conn: conn, logger: logger}
}

// Options configures the ClickHouse connection. PreferNative selects the
// native TCP protocol (port 9000); when false, or when dialing natively
// fails, the loader falls back to the HTTP protocol, per §4.9 step 5.
type Options struct {
	Host          string
	Port          int
	HTTPPort      int
	User          string
	Password      string
	Database      string
	PreferNative  bool
	Logger        *logrus.Logger
}

// Open dials ClickHouse, preferring the native protocol and falling back
// to HTTP when the native dial fails or is disabled.
func Open(opts Options) (*Loader, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	auth := clickhouse.Auth{
		Database: opts.Database,
		Username: opts.User,
		Password: opts.Password,
	}

	if opts.PreferNative {
		port := opts.Port
		if port == 0 {
			port = 9000
		}
		conn, err := clickhouse.Open(&clickhouse.Options{
			Addr:     []string{fmt.Sprintf("%s:%d", opts.Host, port)},
			Auth:     auth,
			Protocol: clickhouse.Native,
		})
		if err != nil {
			logger.WithError(err).Warn("warehouse: native protocol dial failed, falling back to HTTP")
		} else if pingErr := conn.Ping(context.Background()); pingErr == nil {
			return &Loader{conn: connAdapter{conn}, logger: logger}, nil
		} else {
			logger.WithError(pingErr).Warn("warehouse: native protocol unreachable, falling back to HTTP")
		}
	}

	httpPort := opts.HTTPPort
	if httpPort == 0 {
		httpPort = 8123
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", opts.Host, httpPort)},
		Auth:     auth,
		Protocol: clickhouse.HTTP,
	})
	if err != nil {
		return nil, pipelineerr.WarehouseLoadFailed(opts.Database, err)
	}
	return &Loader{conn: connAdapter{conn}, logger: logger}, nil
}

// Close releases the underlying connection.
func (l *Loader) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}

// warehouseColumnInfo is one row of system.columns for the target table.
type warehouseColumnInfo struct {
	name     string
	dbType   string
	position int
}

// introspect reads the target table's real column list and types from
// ClickHouse's system catalog, ordered by position, per §4.9 step 1.
func (l *Loader) introspect(ctx context.Context, database, table string) ([]warehouseColumnInfo, error) {
	rows, err := l.conn.Query(ctx,
		`SELECT name, type, position FROM system.columns WHERE database = ? AND table = ? ORDER BY position`,
		database, table,
	)
	if err != nil {
		return nil, pipelineerr.WarehouseLoadFailed(table, fmt.Errorf("introspect columns: %w", err))
	}
	defer rows.Close()

	var cols []warehouseColumnInfo
	for rows.Next() {
		var c warehouseColumnInfo
		if err := rows.Scan(&c.name, &c.dbType, &c.position); err != nil {
			return nil, pipelineerr.WarehouseLoadFailed(table, fmt.Errorf("scan column metadata: %w", err))
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Load inserts f into mapping.Table, per the full §4.9 contract: introspect
// the real table, validate required columns survive the mapping, coerce
// every row, and insert in batches with linear-backoff retry on transient
// errors.
func (l *Loader) Load(ctx context.Context, f *frame.Frame, database string, mapping TableMapping, opts LoadOptions) (Result, error) {
	start := time.Now()

	actual, err := l.introspect(ctx, database, mapping.Table)
	if err != nil {
		return Result{}, err
	}
	actualNames := make(map[string]bool, len(actual))
	for _, c := range actual {
		actualNames[c.name] = true
	}

	var missing []string
	for _, col := range mapping.Columns {
		if col.Required && !actualNames[col.Name] {
			missing = append(missing, col.Name)
		}
	}
	if len(missing) > 0 {
		return Result{}, pipelineerr.WarehouseLoadFailed(mapping.Table,
			fmt.Errorf("required warehouse columns missing after mapping: %s", strings.Join(missing, ", ")))
	}

	present := make([]WarehouseColumn, 0, len(mapping.Columns))
	for _, col := range mapping.Columns {
		if actualNames[col.Name] {
			present = append(present, col)
		}
	}

	var totalRows int64
	batchSize := opts.batchRows()
	insertColumns := make([]string, len(present))
	for i, c := range present {
		insertColumns[i] = c.Name
	}
	query := fmt.Sprintf("INSERT INTO %s.%s (%s)", database, mapping.Table, strings.Join(insertColumns, ", "))

	for offset := 0; offset < f.NumRows(); offset += batchSize {
		end := offset + batchSize
		if end > f.NumRows() {
			end = f.NumRows()
		}

		n, err := l.loadBatchWithRetry(ctx, f, mapping, present, query, offset, end, opts)
		if err != nil {
			return Result{Rows: totalRows, Duration: time.Since(start)}, err
		}
		totalRows += n
	}

	return Result{Rows: totalRows, Duration: time.Since(start)}, nil
}

// loadBatchWithRetry inserts rows [start, end) of f, retrying transient
// errors with linear backoff for at most opts.MaxRetries attempts in
// total, per §4.9 step 6.
func (l *Loader) loadBatchWithRetry(ctx context.Context, f *frame.Frame, mapping TableMapping, cols []WarehouseColumn, query string, start, end int, opts LoadOptions) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= opts.maxRetries(); attempt++ {
		n, err := l.loadBatch(ctx, f, mapping, cols, query, start, end)
		if err == nil {
			return n, nil
		}
		lastErr = err
		if !pipelineerr.IsRetryable(err) {
			return 0, err
		}
		l.logger.WithError(err).WithField("attempt", attempt).WithField("table", mapping.Table).
			Warn("warehouse: batch insert failed, retrying")
		if attempt < opts.maxRetries() {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(opts.retryDelay() * time.Duration(attempt)):
			}
		}
	}
	return 0, pipelineerr.WarehouseLoadFailed(mapping.Table, lastErr)
}

func (l *Loader) loadBatch(ctx context.Context, f *frame.Frame, mapping TableMapping, cols []WarehouseColumn, query string, start, end int) (int64, error) {
	batch, err := l.conn.PrepareBatch(ctx, query)
	if err != nil {
		return 0, pipelineerr.WarehouseLoadFailed(mapping.Table, fmt.Errorf("prepare batch: %w", err))
	}

	for row := start; row < end; row++ {
		values := f.RowValues(row)
		args := make([]interface{}, len(cols))
		for i, col := range cols {
			args[i] = coerce(values[mapping.sourceColumn(col.Name)], col)
		}
		if err := batch.Append(args...); err != nil {
			return 0, pipelineerr.WarehouseLoadFailed(mapping.Table, fmt.Errorf("append row %d: %w", row, err))
		}
	}

	if err := batch.Send(); err != nil {
		return 0, pipelineerr.WarehouseLoadFailed(mapping.Table, fmt.Errorf("send batch: %w", err))
	}
	return int64(end - start), nil
}

// coerce converts one frame value to its warehouse column's type, per
// §4.9 step 4's per-kind rules.
func coerce(value interface{}, col WarehouseColumn) interface{} {
	switch col.Type {
	case ColumnString:
		return coerceString(value)
	case ColumnInt:
		return coerceInt(value, col.Nullable)
	case ColumnFloat:
		return coerceFloat(value, col.Nullable)
	case ColumnDate:
		return coerceDate(value)
	case ColumnDateTime:
		return coerceDateTime(value)
	case ColumnArray, ColumnMap:
		return coerceContainer(value, col.Nullable)
	default:
		return value
	}
}

func coerceString(value interface{}) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func coerceInt(value interface{}, nullable bool) interface{} {
	if value == nil {
		if nullable {
			return nil
		}
		return int64(0)
	}
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v) // floating-point truncation, per §4.9 step 4
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			if nullable {
				return nil
			}
			return int64(0)
		}
		return n
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	default:
		if nullable {
			return nil
		}
		return int64(0)
	}
}

func coerceFloat(value interface{}, nullable bool) interface{} {
	if value == nil {
		if nullable {
			return nil
		}
		return float64(0)
	}
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	case int:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			if nullable {
				return nil
			}
			return float64(0)
		}
		f = parsed
	default:
		if nullable {
			return nil
		}
		return float64(0)
	}
	if math.IsNaN(f) {
		if nullable {
			return nil
		}
		return float64(0)
	}
	return f
}

const epochLayoutYYYYMMDD = "20060102"

// coerceDate accepts time.Time, an ISO "YYYY-MM-DD" string, or a
// YYYYMMDD integer, and emits days-since-epoch, per §4.9 step 4.
func coerceDate(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return daysSinceEpoch(v)
	case int64:
		if t, err := time.Parse(epochLayoutYYYYMMDD, strconv.FormatInt(v, 10)); err == nil {
			return daysSinceEpoch(t)
		}
		return nil
	case string:
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return daysSinceEpoch(t)
		}
		if t, err := time.Parse(epochLayoutYYYYMMDD, v); err == nil {
			return daysSinceEpoch(t)
		}
		return nil
	default:
		return nil
	}
}

func daysSinceEpoch(t time.Time) int32 {
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	return int32(t.UTC().Sub(epoch).Hours() / 24)
}

// coerceDateTime accepts a time.Time, an ISO datetime string, or an epoch
// integer (> 10^12 is milliseconds, > 10^9 is seconds), and emits
// milliseconds-since-epoch, per §4.9 step 4.
func coerceDateTime(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return v.UTC().UnixMilli()
	case int64:
		return normalizeEpoch(v)
	case int:
		return normalizeEpoch(int64(v))
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return normalizeEpoch(n)
		}
		for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC().UnixMilli()
			}
		}
		return nil
	default:
		return nil
	}
}

func normalizeEpoch(v int64) int64 {
	switch {
	case v > 1_000_000_000_000:
		return v // already milliseconds
	case v > 1_000_000_000:
		return v * 1000 // seconds -> milliseconds
	default:
		return v
	}
}

// coerceContainer accepts a JSON string or a native slice/map and passes
// it through unchanged for clickhouse-go's own Array/Map binding; an
// absent non-nullable container becomes an empty slice, per §4.9 step 4.
func coerceContainer(value interface{}, nullable bool) interface{} {
	if value == nil {
		if nullable {
			return nil
		}
		return []string{}
	}
	return value
}
