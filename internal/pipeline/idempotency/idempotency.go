// Package idempotency implements the pipeline's marker store: a sidecar
// JSON file per (output_path, key) recording that the write for that key
// completed successfully, so a later run for the same key is a no-op.
//
// A marker is written atomically — temp file then os.Rename — so readers
// never observe a half-written marker; "missing or corrupt" is always
// treated the same as "not complete," per §4.1.
package idempotency

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
)

// ErrNotFound indicates a marker does not exist or is corrupt — treated as
// "the step is not complete for this key."
var ErrNotFound = errors.New("idempotency: marker not found")

// Store reads and writes marker sidecars on the local filesystem.
type Store struct{}

// NewStore creates a filesystem-backed marker store.
func NewStore() *Store {
	return &Store{}
}

// markerPath derives the sidecar path from an output path, per §4.1
// ("a sidecar file named from (output_path, key)").
func markerPath(outputPath, key string) string {
	safeKey := sanitizeKey(key)
	return outputPath + "." + safeKey + ".marker.json"
}

func sanitizeKey(key string) string {
	if key == "" {
		return "default"
	}
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// IsComplete reports whether a valid marker exists for (outputPath, key).
func (s *Store) IsComplete(outputPath, key string) bool {
	_, err := s.Read(outputPath, key)
	return err == nil
}

// Read loads the marker for (outputPath, key). A missing or corrupt file
// returns ErrNotFound, never a parse error — per §4.1's "marker corruption
// is treated as not complete."
func (s *Store) Read(outputPath, key string) (*model.IdempotencyMarker, error) {
	path := markerPath(outputPath, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, ErrNotFound
	}

	var marker model.IdempotencyMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, ErrNotFound
	}
	return &marker, nil
}

// RecordComplete writes the marker for (outputPath, key), overwriting any
// prior marker for this key. Callers must only call this after the output
// itself is durable (§4.1: "record_complete only after the output is
// durable").
func (s *Store) RecordComplete(outputPath, key string, rows int64, metadata map[string]interface{}) error {
	marker := model.IdempotencyMarker{
		OutputPath: outputPath,
		Key:        key,
		Rows:       rows,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("idempotency: marshal marker: %w", err)
	}

	finalPath := markerPath(outputPath, key)
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("idempotency: create marker dir: %w", err)
	}

	tmpPath := finalPath + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("idempotency: write temp marker: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("idempotency: rename marker into place: %w", err)
	}
	return nil
}

// RecordSkipped writes a zero-row marker noting a skip reason, per the
// §4.1 edge case: "empty-result writes (e.g. 404 from upstream) still
// create a marker with rows=0 ... this prevents endless retry of
// permanently missing dates."
func (s *Store) RecordSkipped(outputPath, key, reason string) error {
	return s.RecordComplete(outputPath, key, 0, map[string]interface{}{"skipped": reason})
}
