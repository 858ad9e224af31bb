package writer_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/parser"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/validator"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/writer"
)

const equityBarHeader = "SYMBOL,SERIES,ISIN,PREVCLOSE,OPEN,HIGH,LOW,CLOSE,LAST,TOTTRDQTY,TOTTRDVAL,TOTALTRADES\n"

func equityBarRow(symbol string, high, low float64) string {
	return fmt.Sprintf("%s,EQ,INE000000000,2500.00,2505.00,%.2f,%.2f,2520.00,2520.00,1000000,2520000000.00,500\n",
		symbol, high, low)
}

func TestWrite_ProducesPartitionedParquetFile(t *testing.T) {
	dir := t.TempDir()
	tradeDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	result, err := parser.ParseNSEEquityBar([]byte(equityBarHeader+equityBarRow("RELIANCE", 2530, 2490)), tradeDate, "v1", 0)
	require.NoError(t, err)
	defer result.Frame.Release()

	out, err := writer.Write(result.Frame, writer.Options{
		BasePath:   dir,
		Dataset:    "equity_ohlc",
		Partitions: writer.PartitionsFromDate(2024, 1, 15),
	})
	require.NoError(t, err)

	assert.FileExists(t, out.OutputPath)
	assert.Equal(t, int64(1), out.RowsWritten)
	assert.Equal(t, filepath.Join(dir, "equity_ohlc", "year=2024", "month=01", "day=15"), filepath.Dir(out.OutputPath))
	assert.Empty(t, out.QuarantinePath)
}

func TestWrite_QuarantinesCriticalRowsWhenNotFailingHard(t *testing.T) {
	dir := t.TempDir()
	tradeDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rows := equityBarRow("RELIANCE", 2530, 2490) + equityBarRow("INFY", 2400, 2490) // INFY: high < low
	result, err := parser.ParseNSEEquityBar([]byte(equityBarHeader+rows), tradeDate, "v1", 0)
	require.NoError(t, err)
	defer result.Frame.Release()

	rules := []validator.Rule{validator.NewSchemaRule(parser.EquityBarSchema)}
	rules = append(rules, validator.DefaultBusinessRules(0)...)

	out, err := writer.Write(result.Frame, writer.Options{
		BasePath:   dir,
		Dataset:    "equity_ohlc",
		Partitions: writer.PartitionsFromDate(2024, 1, 15),
		SchemaName: "equity_bar",
		Rules:      rules,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), out.RowsWritten, "the clean RELIANCE row should still be written")
	assert.FileExists(t, out.OutputPath)
	require.NotEmpty(t, out.QuarantinePath)
	assert.FileExists(t, out.QuarantinePath)
	assert.Equal(t, int64(1), out.QuarantineRows)
	require.NotNil(t, out.Validation)
	assert.Equal(t, 1, out.Validation.CriticalFailures)
}

func TestWrite_FailOnValidationErrorsAbortsMainWrite(t *testing.T) {
	dir := t.TempDir()
	tradeDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	result, err := parser.ParseNSEEquityBar([]byte(equityBarHeader+equityBarRow("INFY", 2400, 2490)), tradeDate, "v1", 0)
	require.NoError(t, err)
	defer result.Frame.Release()

	_, err = writer.Write(result.Frame, writer.Options{
		BasePath:               dir,
		Dataset:                "equity_ohlc",
		Partitions:             writer.PartitionsFromDate(2024, 1, 15),
		SchemaName:             "equity_bar",
		Rules:                  validator.DefaultBusinessRules(0),
		FailOnValidationErrors: true,
	})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "equity_ohlc", "year=2024", "month=01", "day=15"))
	assert.True(t, os.IsNotExist(err) || len(entries) == 0)
}

func TestWrite_IdempotencyMarkerRecordedOnSuccess(t *testing.T) {
	dir := t.TempDir()
	tradeDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	result, err := parser.ParseNSEEquityBar([]byte(equityBarHeader+equityBarRow("RELIANCE", 2530, 2490)), tradeDate, "v1", 0)
	require.NoError(t, err)
	defer result.Frame.Release()

	out, err := writer.Write(result.Frame, writer.Options{
		BasePath:       dir,
		Dataset:        "equity_ohlc",
		Partitions:     writer.PartitionsFromDate(2024, 1, 15),
		IdempotencyKey: "2024-01-15",
	})
	require.NoError(t, err)

	markerPath := out.OutputPath + ".2024-01-15.marker.json"
	assert.FileExists(t, markerPath)
}

func TestCoalesce_MergesSmallFilesBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	tradeDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		result, err := parser.ParseNSEEquityBar([]byte(equityBarHeader+equityBarRow(fmt.Sprintf("SYM%d", i), 2530, 2490)), tradeDate, "v1", 0)
		require.NoError(t, err)
		_, err = writer.Write(result.Frame, writer.Options{BasePath: dir, Dataset: "equity_ohlc"})
		require.NoError(t, err)
		result.Frame.Release()
	}

	outputDir := filepath.Join(dir, "equity_ohlc")
	produced, err := writer.Coalesce(outputDir, parser.EquityBarSchema, writer.CoalesceOptions{ThresholdBytes: 1 << 30, TargetBytes: 1 << 30})
	require.NoError(t, err)
	require.Len(t, produced, 1)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the three originals should be replaced by one merged file")
}

func TestWriteMetadataSidecar_WritesManifest(t *testing.T) {
	dir := t.TempDir()
	err := writer.WriteMetadataSidecar(dir, parser.EquityBarSchema, map[string]int64{
		filepath.Join(dir, "part-1.parquet"): 100,
		filepath.Join(dir, "part-2.parquet"): 50,
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "_metadata"))
	assert.FileExists(t, filepath.Join(dir, "_common_metadata"))
}
