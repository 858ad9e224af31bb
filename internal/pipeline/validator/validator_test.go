package validator_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/parser"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/validator"
)

const equityBarHeader = "SYMBOL,SERIES,ISIN,PREVCLOSE,OPEN,HIGH,LOW,CLOSE,LAST,TOTTRDQTY,TOTTRDVAL,TOTALTRADES\n"

func equityBarRow(symbol string, prevClose, open, high, low, closePx, last float64, volume, turnoverPaise, trades int64) string {
	return fmt.Sprintf("%s,EQ,INE000000000,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%d,%.2f,%d\n",
		symbol, prevClose, open, high, low, closePx, last, volume, float64(turnoverPaise), trades)
}

func parseBar(t *testing.T, rows string, tradeDate time.Time) *frame.Frame {
	t.Helper()
	result, err := parser.ParseNSEEquityBar([]byte(equityBarHeader+rows), tradeDate, "v1", time.Now().UnixMilli())
	require.NoError(t, err)
	return result.Frame
}

func TestRun_CleanFrameHasNoCriticalFailures(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 1_000_000, 252_000_000, 500), tradeDate)
	defer f.Release()

	result := validator.Run(f, validator.DefaultBusinessRules(0), validator.Options{})

	assert.Equal(t, 1, result.TotalRows)
	assert.Equal(t, 0, result.CriticalFailures)
	assert.Equal(t, 1, result.ValidRows)
}

func TestRun_HighLessThanLowIsCritical(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2400, 2490, 2520, 2520, 1_000_000, 252_000_000, 500), tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "ohlc_high_low_consistency")}, validator.Options{})

	require.Equal(t, 1, result.CriticalFailures)
	assert.Equal(t, model.SeverityCritical, result.ErrorDetails[0].Severity)
	assert.Equal(t, "ohlc_high_low_consistency", result.ErrorDetails[0].Validator)
}

func TestRun_OpenOutsideRangeIsCritical(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2600, 2530, 2490, 2520, 2520, 1_000_000, 252_000_000, 500), tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "ohlc_open_in_range")}, validator.Options{})
	assert.Equal(t, 1, result.CriticalFailures)
}

func TestRun_NegativeVolumeIsCritical(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, -10, 252_000_000, 500), tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "non_negative_volume")}, validator.Options{})
	assert.Equal(t, 1, result.CriticalFailures)
}

func TestRun_TradesWithZeroVolumeIsCritical(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 0, 0, 50), tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "volume_when_trades")}, validator.Options{})
	assert.Equal(t, 1, result.CriticalFailures)
}

func TestRun_TurnoverOutsideToleranceIsWarning(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	// volume*close = 1,000,000 * 2520 = 2,520,000,000; report a wildly different turnover.
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 1_000_000, 1_000_000, 500), tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "turnover_reasonableness")}, validator.Options{})
	assert.Equal(t, 0, result.CriticalFailures)
	assert.Equal(t, 1, result.Warnings)
}

func TestRun_PriceContinuityBreachIsWarning(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 1000, 1005, 2530, 990, 2000, 2000, 1_000_000, 252_000_000, 500), tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "price_continuity")}, validator.Options{})
	assert.Equal(t, 1, result.Warnings)
}

func TestRun_DateRangeRejectsPreEpochPartition(t *testing.T) {
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 1_000_000, 252_000_000, 500),
		time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC))
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "date_range")}, validator.Options{})
	assert.Equal(t, 1, result.CriticalFailures)
}

func TestRun_TradingDayWithZeroVolumeIsWarning(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 0, 0, 0), tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "trading_day_completeness")}, validator.Options{})
	assert.Equal(t, 1, result.Warnings)
}

func TestRun_AdjustmentFactorMustBePositive(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 1_000_000, 252_000_000, 500), tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "adjustment_factor_positive")}, validator.Options{})
	assert.Equal(t, 0, result.CriticalFailures)
}

func TestRun_UniquenessCatchesDuplicatesAcrossSlices(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	rows := equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 1_000_000, 252_000_000, 500) +
		equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 1_000_000, 252_000_000, 500)
	f := parseBar(t, rows, tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "uniqueness")}, validator.Options{SliceRows: 1})

	require.Equal(t, 1, result.CriticalFailures)
	assert.Equal(t, 1, result.ErrorDetails[0].RowIndex)
}

func TestRun_StreamsAcrossSliceBoundaries(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	var rows string
	for i := 0; i < 25; i++ {
		rows += equityBarRow(fmt.Sprintf("SYM%d", i), 2500, 2505, 2400, 2490, 2520, 2520, 1_000_000, 252_000_000, 500)
	}
	f := parseBar(t, rows, tradeDate)
	defer f.Release()

	result := validator.Run(f, []validator.Rule{mustRule(t, "ohlc_high_low_consistency")}, validator.Options{SliceRows: 10})

	require.Equal(t, 25, result.CriticalFailures)
	for i, detail := range result.ErrorDetails {
		assert.Equal(t, i, detail.RowIndex)
	}
}

func TestRun_SchemaRuleFlagsMissingColumn(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 1_000_000, 252_000_000, 500), tradeDate)
	defer f.Release()

	expected := frame.Schema{Name: "equity_bar", Columns: append(
		append([]frame.Column{}, parser.EquityBarSchema.Columns...),
		frame.Column{Name: "does_not_exist", Kind: frame.KindString},
	)}

	result := validator.Run(f, []validator.Rule{validator.NewSchemaRule(expected)}, validator.Options{})
	require.Equal(t, 1, result.CriticalFailures)
	assert.Contains(t, result.ErrorDetails[0].Message, "does_not_exist")
}

func TestRun_CustomRule(t *testing.T) {
	tradeDate := time.Now().UTC().Truncate(24 * time.Hour)
	f := parseBar(t, equityBarRow("RELIANCE", 2500, 2505, 2530, 2490, 2520, 2520, 1_000_000, 252_000_000, 500), tradeDate)
	defer f.Release()

	rule := validator.NewCustomRule("symbol_is_reliance", func(slice *frame.Frame, offset int) []model.ErrorDetail {
		var out []model.ErrorDetail
		for row := 0; row < slice.NumRows(); row++ {
			symbol, _ := slice.StringAt("symbol", row)
			if symbol != "RELIANCE" {
				out = append(out, model.ErrorDetail{RowIndex: offset + row, Validator: "symbol_is_reliance", Severity: model.SeverityWarning})
			}
		}
		return out
	})

	result := validator.Run(f, []validator.Rule{rule}, validator.Options{})
	assert.Equal(t, 0, result.Warnings)
	assert.Contains(t, result.RulesApplied, "symbol_is_reliance")
}

func mustRule(t *testing.T, name string) validator.Rule {
	t.Helper()
	for _, r := range validator.DefaultBusinessRules(0) {
		if r.Name() == name {
			return r
		}
	}
	t.Fatalf("no rule named %q", name)
	return nil
}
