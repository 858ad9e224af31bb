// Package frame provides Frame, the in-memory columnar record batch that
// flows between the parser, validator, writer, and deduplicator stages.
// It is a thin wrapper over an Arrow record batch — the same
// building-block arrow-go/v18 gives the Parquet writer, so converting a
// Frame to a Parquet file needs no intermediate row-to-column transpose.
package frame

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ColumnKind is the semantic type the validator and writer reason about;
// it maps onto an Arrow physical type but keeps call sites free of direct
// arrow.DataType juggling.
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindInt64
	KindFloat64
	KindBool
	KindTimestampMs
)

// Column declares one column's name and semantic kind.
type Column struct {
	Name     string
	Kind     ColumnKind
	Nullable bool
}

// Schema is the declared column set a parser produces and a validator's
// schemaRule checks against.
type Schema struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the schema's column names in declaration order.
func (s Schema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Has reports whether the schema declares a column with this name.
func (s Schema) Has(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func arrowType(k ColumnKind) arrow.DataType {
	switch k {
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	case KindTimestampMs:
		return arrow.FixedWidthTypes.Timestamp_ms
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowSchema converts the declared Schema to an arrow.Schema.
func (s Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Kind), Nullable: c.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

// Frame is an immutable, in-memory columnar record batch: a declared
// Schema plus the Arrow record holding its values.
type Frame struct {
	schema Schema
	record arrow.Record
}

// New wraps an existing arrow.Record with its declared Schema. The record
// must already match schema.ArrowSchema() field-for-field.
func New(schema Schema, record arrow.Record) *Frame {
	return &Frame{schema: schema, record: record}
}

// Schema returns the frame's declared column schema.
func (f *Frame) Schema() Schema { return f.schema }

// Record returns the underlying Arrow record batch.
func (f *Frame) Record() arrow.Record { return f.record }

// NumRows returns the number of rows in the frame.
func (f *Frame) NumRows() int {
	if f.record == nil {
		return 0
	}
	return int(f.record.NumRows())
}

// Release frees the underlying Arrow buffers. Callers must call this once
// they are done with the frame (after write, per the ownership rule in
// §3.2: a run owns its frame from fetch through write).
func (f *Frame) Release() {
	if f.record != nil {
		f.record.Release()
	}
}

// Slice returns a new Frame covering rows [start, end) from this frame,
// sharing the underlying buffers (no copy). Used by the validator to
// stream in default_slice_rows chunks.
func (f *Frame) Slice(start, end int) *Frame {
	sliced := f.record.NewSlice(int64(start), int64(end))
	return &Frame{schema: f.schema, record: sliced}
}

// ColumnIndex returns the index of a named column, or -1 if absent.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.schema.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Float64At returns the float64 value at (column, row), and whether it is
// non-null. A missing or non-float64 column also reports (0, false).
func (f *Frame) Float64At(col string, row int) (float64, bool) {
	idx := f.ColumnIndex(col)
	if idx < 0 {
		return 0, false
	}
	arr, ok := f.record.Column(idx).(*array.Float64)
	if !ok || arr.IsNull(row) {
		return 0, false
	}
	return arr.Value(row), true
}

// Int64At returns the int64 value at (column, row), and whether it is
// non-null.
func (f *Frame) Int64At(col string, row int) (int64, bool) {
	idx := f.ColumnIndex(col)
	if idx < 0 {
		return 0, false
	}
	arr, ok := f.record.Column(idx).(*array.Int64)
	if !ok || arr.IsNull(row) {
		return 0, false
	}
	return arr.Value(row), true
}

// StringAt returns the string value at (column, row), and whether it is
// non-null.
func (f *Frame) StringAt(col string, row int) (string, bool) {
	idx := f.ColumnIndex(col)
	if idx < 0 {
		return "", false
	}
	arr, ok := f.record.Column(idx).(*array.String)
	if !ok || arr.IsNull(row) {
		return "", false
	}
	return arr.Value(row), true
}

// BoolAt returns the bool value at (column, row), and whether it is
// non-null.
func (f *Frame) BoolAt(col string, row int) (bool, bool) {
	idx := f.ColumnIndex(col)
	if idx < 0 {
		return false, false
	}
	arr, ok := f.record.Column(idx).(*array.Boolean)
	if !ok || arr.IsNull(row) {
		return false, false
	}
	return arr.Value(row), true
}

// TimestampMsAt returns the millisecond epoch timestamp at (column, row),
// and whether it is non-null.
func (f *Frame) TimestampMsAt(col string, row int) (int64, bool) {
	idx := f.ColumnIndex(col)
	if idx < 0 {
		return 0, false
	}
	arr, ok := f.record.Column(idx).(*array.Timestamp)
	if !ok || arr.IsNull(row) {
		return 0, false
	}
	return int64(arr.Value(row)), true
}

// RowValues extracts one row as a column-name-keyed map suitable for
// re-appending via Builder.AppendRow — used by the writer and dedup
// packages to rebuild frames with a subset/merge of rows.
func (f *Frame) RowValues(row int) map[string]interface{} {
	values := make(map[string]interface{}, len(f.schema.Columns))
	for _, col := range f.schema.Columns {
		switch col.Kind {
		case KindFloat64:
			if v, ok := f.Float64At(col.Name, row); ok {
				values[col.Name] = v
			}
		case KindTimestampMs:
			if v, ok := f.TimestampMsAt(col.Name, row); ok {
				values[col.Name] = v
			}
		case KindInt64:
			if v, ok := f.Int64At(col.Name, row); ok {
				values[col.Name] = v
			}
		case KindBool:
			if v, ok := f.BoolAt(col.Name, row); ok {
				values[col.Name] = v
			}
		default:
			if v, ok := f.StringAt(col.Name, row); ok {
				values[col.Name] = v
			}
		}
	}
	return values
}

// Builder accumulates rows column-by-column and produces a Frame.
type Builder struct {
	schema Schema
	rb     *array.RecordBuilder
	mem    memory.Allocator
}

// NewBuilder creates a Builder for the given schema using the default Go
// allocator.
func NewBuilder(schema Schema) *Builder {
	mem := memory.NewGoAllocator()
	return &Builder{
		schema: schema,
		rb:     array.NewRecordBuilder(mem, schema.ArrowSchema()),
		mem:    mem,
	}
}

// AppendRow appends one row. values must supply an entry for every
// non-nullable column; a missing or nil value for a nullable column
// appends null.
func (b *Builder) AppendRow(values map[string]interface{}) error {
	for i, col := range b.schema.Columns {
		v, present := values[col.Name]
		fb := b.rb.Field(i)
		if !present || v == nil {
			if !col.Nullable {
				return fmt.Errorf("frame: column %q is required but value is missing", col.Name)
			}
			fb.AppendNull()
			continue
		}
		if err := appendValue(fb, col, v); err != nil {
			return fmt.Errorf("frame: column %q: %w", col.Name, err)
		}
	}
	return nil
}

func appendValue(fb array.Builder, col Column, v interface{}) error {
	switch col.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		fb.(*array.StringBuilder).Append(s)
	case KindInt64:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		fb.(*array.Int64Builder).Append(n)
	case KindFloat64:
		fl, err := toFloat64(v)
		if err != nil {
			return err
		}
		fb.(*array.Float64Builder).Append(fl)
	case KindBool:
		bl, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		fb.(*array.BooleanBuilder).Append(bl)
	case KindTimestampMs:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		fb.(*array.TimestampBuilder).Append(arrow.Timestamp(n))
	default:
		return fmt.Errorf("unsupported column kind %v", col.Kind)
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer-like value, got %T", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected float-like value, got %T", v)
	}
}

// Build finalizes the builder into a Frame. The builder is reset and may
// be reused for a new batch.
func (b *Builder) Build() *Frame {
	rec := b.rb.NewRecord()
	return &Frame{schema: b.schema, record: rec}
}

// Release frees the builder's underlying buffers.
func (b *Builder) Release() {
	b.rb.Release()
}

// Concat appends the rows of every non-nil frame, in order, into a new
// Frame carrying the first frame's schema. All inputs must share the same
// schema. Used by the coalescer to merge small files and by the kernel's
// per-index/per-underlying fan-out steps to merge their parsed frames.
func Concat(frames ...*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("frame: Concat requires at least one frame")
	}
	schema := frames[0].schema
	records := make([]arrow.Record, 0, len(frames))
	for _, fr := range frames {
		if fr == nil {
			continue
		}
		records = append(records, fr.record)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("frame: Concat requires at least one non-nil frame")
	}
	merged, err := array.ConcatRecords(records, memory.NewGoAllocator())
	if err != nil {
		return nil, fmt.Errorf("frame: concat records: %w", err)
	}
	return &Frame{schema: schema, record: merged}, nil
}
