// Package writer persists a frame.Frame as a partitioned Parquet file
// under a Hive-style directory layout, per spec §4.7. Grounded on
// NimbleMarkets-dbn-go/internal/file/parquet_writer.go's use of
// arrow-go/v18/parquet writer properties (version, compression); this
// package writes through arrow-go/v18/parquet/pqarrow instead of that
// file's manual per-column ColumnChunkWriter calls, since a Frame is
// already an arrow.Record end to end (see DESIGN.md) rather than a
// stream of typed DBN structs needing row-by-row column assembly.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/idempotency"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/validator"
)

// Compression selects the Parquet page compression codec, per §4.7.
type Compression int

const (
	CompressionSnappy Compression = iota
	CompressionGzip
	CompressionZstd
)

func (c Compression) codec() compress.Compression {
	switch c {
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	default:
		return compress.Codecs.Snappy
	}
}

// Partition is one Hive-style `key=value` path segment, e.g. {"year",
// "2024"}. Order matters: segments nest in the order given.
type Partition struct {
	Key   string
	Value string
}

// Options configures one Write call.
type Options struct {
	BasePath      string
	Dataset       string
	Partitions    []Partition
	Compression   Compression
	SchemaName    string          // if set, Write validates first, per §4.7 step 2
	Rules         []validator.Rule // required if SchemaName is set
	QuarantineDir string
	FailOnValidationErrors bool
	IdempotencyKey string // if set, RecordComplete is called on success
}

// Writer writes frames to partitioned Parquet files with rename-on-complete
// semantics and optional pre-write validation/quarantine routing.
type Writer struct {
	markers *idempotency.Store
}

// New creates a Writer backed by a filesystem idempotency marker store.
func New() *Writer {
	return &Writer{markers: idempotency.NewStore()}
}

// Result is what one Write call produced.
type Result struct {
	OutputPath      string
	RowsWritten     int64
	Validation      *model.ValidationResult
	QuarantinePath  string
	QuarantineRows  int64
}

// Write persists f under {base_path}/{dataset}/{partition segments}/ as a
// Parquet file, per spec §4.7's contract. When opts.SchemaName is set, the
// frame is validated first; critical rows are routed to a sibling
// quarantine file carrying a joined `validation_errors` column, and if
// opts.FailOnValidationErrors is set and any critical failure exists, Write
// returns an error without writing the main output.
func Write(f *frame.Frame, opts Options) (Result, error) {
	w := New()
	return w.Write(f, opts)
}

func (w *Writer) Write(f *frame.Frame, opts Options) (Result, error) {
	result := Result{}

	target := f
	if opts.SchemaName != "" {
		validation := validator.Run(f, opts.Rules, validator.Options{FailOnValidationErrors: opts.FailOnValidationErrors})
		result.Validation = &validation

		if validation.CriticalFailures > 0 {
			quarantinePath, quarantineRows, err := quarantine(f, validation, opts)
			if err != nil {
				return result, fmt.Errorf("writer: quarantine: %w", err)
			}
			result.QuarantinePath = quarantinePath
			result.QuarantineRows = quarantineRows

			if opts.FailOnValidationErrors {
				return result, fmt.Errorf("writer: %d critical validation failures for dataset %s, quarantined to %s",
					validation.CriticalFailures, opts.Dataset, quarantinePath)
			}

			clean, err := excludeRows(f, criticalRowSet(validation))
			if err != nil {
				return result, fmt.Errorf("writer: exclude quarantined rows: %w", err)
			}
			defer clean.Release()
			target = clean
		}
	}

	outputDir := partitionDir(opts.BasePath, opts.Dataset, opts.Partitions)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return result, fmt.Errorf("writer: create output dir: %w", err)
	}

	finalPath := filepath.Join(outputDir, fmt.Sprintf("part-%s.parquet", uuid.NewString()))
	tmpPath := finalPath + ".tmp." + uuid.NewString()

	if err := writeParquetFile(tmpPath, target, opts.Compression); err != nil {
		_ = os.Remove(tmpPath)
		return result, fmt.Errorf("writer: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return result, fmt.Errorf("writer: rename into place: %w", err)
	}

	result.OutputPath = finalPath
	result.RowsWritten = int64(target.NumRows())

	if opts.IdempotencyKey != "" {
		if err := w.markers.RecordComplete(finalPath, opts.IdempotencyKey, result.RowsWritten, nil); err != nil {
			return result, fmt.Errorf("writer: record idempotency marker: %w", err)
		}
	}

	return result, nil
}

func writeParquetFile(path string, f *frame.Frame, c Compression) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	props := parquet.NewWriterProperties(
		parquet.WithVersion(parquet.V2_LATEST),
		parquet.WithCompression(c.codec()),
		parquet.WithStats(true),
	)
	arrowProps := pqarrow.DefaultWriterProps()

	fw, err := pqarrow.NewFileWriter(f.Schema().ArrowSchema(), out, props, arrowProps)
	if err != nil {
		return fmt.Errorf("new file writer: %w", err)
	}
	defer fw.Close()

	if f.NumRows() > 0 {
		if err := fw.Write(f.Record()); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return nil
}

// PartitionDir exposes partitionDir for callers (e.g. the kernel) that
// need the stable directory a dataset/partition combination resolves to
// before any file within it is written — used as an idempotency-gating
// path distinct from the per-write randomized Parquet file name.
func PartitionDir(basePath, dataset string, partitions []Partition) string {
	return partitionDir(basePath, dataset, partitions)
}

// partitionDir resolves {base_path}/{dataset}/{key=value}/..., per §4.7
// step 1's Hive-style layout (e.g. year=2024/month=01/day=15/).
func partitionDir(basePath, dataset string, partitions []Partition) string {
	segments := make([]string, 0, len(partitions)+2)
	segments = append(segments, basePath, dataset)
	for _, p := range partitions {
		segments = append(segments, fmt.Sprintf("%s=%s", p.Key, p.Value))
	}
	return filepath.Join(segments...)
}

// PartitionsFromDate builds the canonical year/month/day Partition slice
// from a trade date's components, zero-padding month and day.
func PartitionsFromDate(year, month, day int) []Partition {
	return []Partition{
		{Key: "year", Value: strconv.Itoa(year)},
		{Key: "month", Value: fmt.Sprintf("%02d", month)},
		{Key: "day", Value: fmt.Sprintf("%02d", day)},
	}
}

func criticalRowSet(v model.ValidationResult) map[int]string {
	rows := make(map[int]string)
	for _, d := range v.ErrorDetails {
		if d.Severity != model.SeverityCritical {
			continue
		}
		if existing, ok := rows[d.RowIndex]; ok {
			rows[d.RowIndex] = existing + "; " + d.Message
		} else {
			rows[d.RowIndex] = d.Message
		}
	}
	return rows
}

// excludeRows rebuilds f without the rows present in excluded, preserving
// column order and schema.
func excludeRows(f *frame.Frame, excluded map[int]string) (*frame.Frame, error) {
	b := frame.NewBuilder(f.Schema())
	for row := 0; row < f.NumRows(); row++ {
		if _, skip := excluded[row]; skip {
			continue
		}
		if err := b.AppendRow(f.RowValues(row)); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// quarantineSchema is every quarantined dataset's schema: the offending
// frame's own columns plus a joined validation_errors string and the
// schema_name that was checked, per §4.6's output policy.
func quarantineSchema(base frame.Schema, schemaName string) frame.Schema {
	cols := make([]frame.Column, 0, len(base.Columns)+2)
	cols = append(cols, base.Columns...)
	cols = append(cols,
		frame.Column{Name: "validation_errors", Kind: frame.KindString},
		frame.Column{Name: "schema_name", Kind: frame.KindString},
	)
	return frame.Schema{Name: base.Name + "_quarantine", Columns: cols}
}

func quarantine(f *frame.Frame, v model.ValidationResult, opts Options) (string, int64, error) {
	rows := criticalRowSet(v)
	if len(rows) == 0 {
		return "", 0, nil
	}

	schema := quarantineSchema(f.Schema(), opts.SchemaName)
	b := frame.NewBuilder(schema)
	for row, message := range rows {
		values := f.RowValues(row)
		values["validation_errors"] = message
		values["schema_name"] = opts.SchemaName
		if err := b.AppendRow(values); err != nil {
			return "", 0, err
		}
	}
	quarantineFrame := b.Build()
	defer quarantineFrame.Release()

	quarantineDir := opts.QuarantineDir
	if quarantineDir == "" {
		quarantineDir = filepath.Join(opts.BasePath, "_quarantine")
	}
	outputDir := partitionDir(quarantineDir, opts.Dataset, opts.Partitions)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create quarantine dir: %w", err)
	}

	finalPath := filepath.Join(outputDir, fmt.Sprintf("quarantine-%s.parquet", uuid.NewString()))
	tmpPath := finalPath + ".tmp." + uuid.NewString()
	if err := writeParquetFile(tmpPath, quarantineFrame, CompressionSnappy); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, err
	}

	return finalPath, int64(quarantineFrame.NumRows()), nil
}
