package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
)

// CoalesceOptions bounds the small-file coalescer, per §4.7's
// configurable target/threshold sizes.
type CoalesceOptions struct {
	// ThresholdBytes: files smaller than this are candidates for merging.
	ThresholdBytes int64
	// TargetBytes: the coalescer stops accumulating files into one output
	// once the running total would exceed this.
	TargetBytes int64
	Compression Compression
}

func (o CoalesceOptions) thresholdBytes() int64 {
	if o.ThresholdBytes <= 0 {
		return 16 << 20 // 16 MiB
	}
	return o.ThresholdBytes
}

func (o CoalesceOptions) targetBytes() int64 {
	if o.TargetBytes <= 0 {
		return 128 << 20 // 128 MiB
	}
	return o.TargetBytes
}

// Coalesce merges the small Parquet files under dir (below
// opts.ThresholdBytes) into fewer, larger files, each capped at roughly
// opts.TargetBytes, and removes the originals once their replacement is
// durable. Files at or above the threshold are left untouched. All input
// files must share the same schema.
func Coalesce(dir string, schema frame.Schema, opts CoalesceOptions) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("writer: coalesce: read dir: %w", err)
	}

	var small []string
	var sizes = make(map[string]int64)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("writer: coalesce: stat %s: %w", e.Name(), err)
		}
		if info.Size() < opts.thresholdBytes() {
			path := filepath.Join(dir, e.Name())
			small = append(small, path)
			sizes[path] = info.Size()
		}
	}
	sort.Strings(small)
	if len(small) < 2 {
		return nil, nil // nothing worth merging
	}

	var produced []string
	var batch []string
	var batchBytes int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if len(batch) == 1 {
			batch = nil
			batchBytes = 0
			return nil
		}
		outPath, err := mergeFiles(dir, schema, batch, opts.Compression)
		if err != nil {
			return err
		}
		produced = append(produced, outPath)
		for _, p := range batch {
			_ = os.Remove(p)
		}
		batch = nil
		batchBytes = 0
		return nil
	}

	for _, path := range small {
		if batchBytes+sizes[path] > opts.targetBytes() && len(batch) > 0 {
			if err := flush(); err != nil {
				return produced, err
			}
		}
		batch = append(batch, path)
		batchBytes += sizes[path]
	}
	if err := flush(); err != nil {
		return produced, err
	}

	return produced, nil
}

func mergeFiles(dir string, schema frame.Schema, paths []string, compression Compression) (string, error) {
	frames := make([]*frame.Frame, 0, len(paths))
	defer func() {
		for _, f := range frames {
			f.Release()
		}
	}()

	for _, path := range paths {
		f, err := readParquetFile(path, schema)
		if err != nil {
			return "", fmt.Errorf("writer: coalesce: read %s: %w", path, err)
		}
		frames = append(frames, f)
	}

	merged, err := frame.Concat(frames...)
	if err != nil {
		return "", fmt.Errorf("writer: coalesce: concat: %w", err)
	}
	defer merged.Release()

	outPath := filepath.Join(dir, fmt.Sprintf("part-%s.parquet", uuid.NewString()))
	tmpPath := outPath + ".tmp." + uuid.NewString()
	if err := writeParquetFile(tmpPath, merged, compression); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return outPath, nil
}

// readParquetFile reads a whole Parquet file back into a single Frame
// against the given schema, used by the coalescer to restitch row groups.
func readParquetFile(path string, schema frame.Schema) (*frame.Frame, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, fmt.Errorf("new file reader: %w", err)
	}

	table, err := fr.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	defer table.Release()

	tr := array.NewTableReader(table, table.NumRows())
	defer tr.Release()

	var records []arrow.Record
	for tr.Next() {
		rec := tr.Record()
		rec.Retain()
		records = append(records, rec)
	}
	if len(records) == 0 {
		return frame.New(schema, array.NewRecord(schema.ArrowSchema(), nil, 0)), nil
	}
	merged, err := array.ConcatRecords(records, memory.NewGoAllocator())
	for _, rec := range records {
		rec.Release()
	}
	if err != nil {
		return nil, fmt.Errorf("concat table records: %w", err)
	}
	return frame.New(schema, merged), nil
}
