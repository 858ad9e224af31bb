package idempotency_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/idempotency"
)

func TestStore_IsComplete_FalseWhenNoMarker(t *testing.T) {
	dir := t.TempDir()
	store := idempotency.NewStore()

	assert.False(t, store.IsComplete(filepath.Join(dir, "equity_ohlc"), "2024-01-15"))
}

func TestStore_RecordComplete_ThenIsComplete(t *testing.T) {
	dir := t.TempDir()
	store := idempotency.NewStore()
	outputPath := filepath.Join(dir, "equity_ohlc")

	require.NoError(t, store.RecordComplete(outputPath, "2024-01-15", 3, map[string]interface{}{"source": "NSE_EQ_BAR"}))

	assert.True(t, store.IsComplete(outputPath, "2024-01-15"))

	marker, err := store.Read(outputPath, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, int64(3), marker.Rows)
	assert.Equal(t, "NSE_EQ_BAR", marker.Metadata["source"])
}

func TestStore_RecordSkipped_ZeroRowMarker(t *testing.T) {
	dir := t.TempDir()
	store := idempotency.NewStore()
	outputPath := filepath.Join(dir, "equity_ohlc")

	require.NoError(t, store.RecordSkipped(outputPath, "2024-01-26", "download_failed"))

	marker, err := store.Read(outputPath, "2024-01-26")
	require.NoError(t, err)
	assert.Equal(t, int64(0), marker.Rows)
	assert.Equal(t, "download_failed", marker.Metadata["skipped"])
}

func TestStore_CorruptMarker_TreatedAsNotComplete(t *testing.T) {
	dir := t.TempDir()
	store := idempotency.NewStore()
	outputPath := filepath.Join(dir, "equity_ohlc")

	require.NoError(t, store.RecordComplete(outputPath, "2024-01-15", 3, nil))

	// Corrupt the marker file directly.
	markerFiles, err := filepath.Glob(outputPath + ".*.marker.json")
	require.NoError(t, err)
	require.Len(t, markerFiles, 1)
	require.NoError(t, os.WriteFile(markerFiles[0], []byte("{not json"), 0o644))

	assert.False(t, store.IsComplete(outputPath, "2024-01-15"))
}

func TestStore_DifferentKeysAreIndependent(t *testing.T) {
	dir := t.TempDir()
	store := idempotency.NewStore()
	outputPath := filepath.Join(dir, "equity_ohlc")

	require.NoError(t, store.RecordComplete(outputPath, "2024-01-15", 3, nil))

	assert.True(t, store.IsComplete(outputPath, "2024-01-15"))
	assert.False(t, store.IsComplete(outputPath, "2024-01-16"))
}
