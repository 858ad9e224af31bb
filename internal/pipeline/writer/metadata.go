package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
)

// fileMetadata is one data file's entry in a dataset's _metadata sidecar.
type fileMetadata struct {
	Path string `json:"path"`
	Rows int64  `json:"rows"`
}

// datasetMetadata is the _metadata/_common_metadata sidecar content: the
// dataset's declared schema plus a manifest of its part files, so a
// downstream reader can plan a scan without listing and opening every
// Parquet footer individually. This is a JSON manifest rather than the
// binary Parquet common-metadata footer format real Spark/Arrow datasets
// use — stitching Parquet's own binary FileMetaData across files needs a
// full thrift-footer merge this pipeline has no consumer for yet (the
// warehouse loader reads Frames directly); see DESIGN.md.
type datasetMetadata struct {
	Schema []string       `json:"schema"`
	Files  []fileMetadata `json:"files"`
	Rows   int64          `json:"rows"`
}

// WriteMetadataSidecar writes `_metadata` and `_common_metadata` JSON
// manifests into dir describing the files listed in rowCounts (path -> row
// count, typically accumulated by the caller across Write calls for one
// dataset). dir itself is not listed: only the rowCounts entries appear.
func WriteMetadataSidecar(dir string, schema frame.Schema, rowCounts map[string]int64) error {
	var files []fileMetadata
	var total int64
	for path, rows := range rowCounts {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		files = append(files, fileMetadata{Path: rel, Rows: rows})
		total += rows
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	meta := datasetMetadata{Schema: schema.ColumnNames(), Files: files, Rows: total}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("writer: marshal metadata sidecar: %w", err)
	}

	for _, name := range []string{"_metadata", "_common_metadata"} {
		if err := writeSidecarFile(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}

func writeSidecarFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writer: write sidecar %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writer: rename sidecar %s: %w", path, err)
	}
	return nil
}
