package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
)

// EquityBarSchema is the canonical frame schema every equity-bar parser
// (NSE and BSE) produces, regardless of source column names.
var EquityBarSchema = frame.Schema{
	Name: "equity_bar",
	Columns: []frame.Column{
		{Name: "event_id", Kind: frame.KindString},
		{Name: "event_time", Kind: frame.KindTimestampMs},
		{Name: "ingest_time", Kind: frame.KindTimestampMs},
		{Name: "source", Kind: frame.KindString},
		{Name: "schema_version", Kind: frame.KindString},
		{Name: "entity_id", Kind: frame.KindString},
		{Name: "instrument_id", Kind: frame.KindString, Nullable: true},
		{Name: "symbol", Kind: frame.KindString},
		{Name: "exchange", Kind: frame.KindString},
		{Name: "isin", Kind: frame.KindString, Nullable: true},
		{Name: "instrument_type", Kind: frame.KindString, Nullable: true},
		{Name: "series", Kind: frame.KindString, Nullable: true},
		{Name: "prev_close", Kind: frame.KindFloat64, Nullable: true},
		{Name: "open", Kind: frame.KindFloat64, Nullable: true},
		{Name: "high", Kind: frame.KindFloat64, Nullable: true},
		{Name: "low", Kind: frame.KindFloat64, Nullable: true},
		{Name: "close", Kind: frame.KindFloat64, Nullable: true},
		{Name: "last_price", Kind: frame.KindFloat64, Nullable: true},
		{Name: "settlement_price", Kind: frame.KindFloat64, Nullable: true},
		{Name: "volume", Kind: frame.KindInt64},
		{Name: "turnover", Kind: frame.KindFloat64},
		{Name: "trades", Kind: frame.KindInt64},
		{Name: "adjustment_factor", Kind: frame.KindFloat64},
		{Name: "adjustment_date", Kind: frame.KindTimestampMs, Nullable: true},
		{Name: "is_trading_day", Kind: frame.KindBool},
		{Name: "year", Kind: frame.KindInt64},
		{Name: "month", Kind: frame.KindInt64},
		{Name: "day", Kind: frame.KindInt64},
	},
}

// nseEquityBarColumns is the NSE bhavcopy CSV header this parser requires.
var nseEquityBarColumns = []string{
	"SYMBOL", "SERIES", "ISIN", "PREVCLOSE", "OPEN", "HIGH", "LOW", "CLOSE",
	"LAST", "TOTTRDQTY", "TOTTRDVAL", "TOTALTRADES",
}

// ParseNSEEquityBar parses the NSE daily bhavcopy CSV (already unzipped by
// the fetcher) into an EquityBarSchema frame.
func ParseNSEEquityBar(raw []byte, tradeDate time.Time, schemaVersion string, ingestTimeMs int64) (Result, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return Result{}, fmt.Errorf("nse equity bar: read header: %w", err)
	}
	header = trimAll(header)
	if err := CheckSchemaDrift("NSE_EQ_BAR", nseEquityBarColumns, header); err != nil {
		return Result{}, err
	}
	idx := columnIndex(header)

	b := frame.NewBuilder(EquityBarSchema)
	year, month, day := PartitionValues(tradeDate)
	filtered := 0

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("nse equity bar: read row: %w", err)
		}

		symbol := strings.TrimSpace(row[idx["SYMBOL"]])
		if symbol == "" {
			filtered++
			continue
		}

		prevClose, err := ParseOptionalFloat(row[idx["PREVCLOSE"]])
		if err != nil {
			return Result{}, err
		}
		open, err := ParseOptionalFloat(row[idx["OPEN"]])
		if err != nil {
			return Result{}, err
		}
		high, err := ParseOptionalFloat(row[idx["HIGH"]])
		if err != nil {
			return Result{}, err
		}
		low, err := ParseOptionalFloat(row[idx["LOW"]])
		if err != nil {
			return Result{}, err
		}
		closePrice, err := ParseOptionalFloat(row[idx["CLOSE"]])
		if err != nil {
			return Result{}, err
		}
		last, err := ParseOptionalFloat(row[idx["LAST"]])
		if err != nil {
			return Result{}, err
		}
		volume, err := ParseInt64(row[idx["TOTTRDQTY"]])
		if err != nil {
			return Result{}, err
		}
		turnover, err := ParseFloat(row[idx["TOTTRDVAL"]])
		if err != nil {
			return Result{}, err
		}
		trades, err := ParseInt64(row[idx["TOTALTRADES"]])
		if err != nil {
			return Result{}, err
		}
		isin := strings.TrimSpace(row[idx["ISIN"]])
		series := strings.TrimSpace(row[idx["SERIES"]])

		entityID := fmt.Sprintf("NSE:%s", symbol)
		eventID := EventID("NSE_EQ_BAR", tradeDate, symbol)

		err = b.AppendRow(map[string]interface{}{
			"event_id":          eventID,
			"event_time":        EventTimeMs(tradeDate),
			"ingest_time":       ingestTimeMs,
			"source":            "NSE_EQ_BAR",
			"schema_version":    schemaVersion,
			"entity_id":         entityID,
			"symbol":            symbol,
			"exchange":          "NSE",
			"isin":              optionalString(isin),
			"instrument_type":   "EQ",
			"series":            optionalString(series),
			"prev_close":        floatOrNil(prevClose),
			"open":              floatOrNil(open),
			"high":              floatOrNil(high),
			"low":               floatOrNil(low),
			"close":             floatOrNil(closePrice),
			"last_price":        floatOrNil(last),
			"volume":            volume,
			"turnover":          turnover,
			"trades":            trades,
			"adjustment_factor": 1.0,
			"adjustment_date":   nil,
			"is_trading_day":    true,
			"year":              int64(year),
			"month":             int64(month),
			"day":               int64(day),
		})
		if err != nil {
			return Result{}, fmt.Errorf("nse equity bar: symbol %s: %w", symbol, err)
		}
	}

	return Result{Frame: b.Build(), FilteredRows: filtered}, nil
}

// bseEquityBarColumns is the BSE bhavcopy CSV header this parser requires;
// column values are mapped inline onto the canonical EquityBarSchema
// fields below, per §4.5's BSE→NSE unification rule.
var bseEquityBarColumns = []string{
	"SC_CODE", "SC_NAME", "OPEN", "HIGH", "LOW", "CLOSE", "PREVCLOSE",
	"NO_OF_SHRS", "NET_TURNOV", "NO_TRADES", "ISIN_CODE",
}

// ParseBSEEquityBar parses the BSE daily bhavcopy CSV into the same
// EquityBarSchema frame as ParseNSEEquityBar, mapping BSE's column names
// onto the canonical ones and filling NSE-only fields (LAST, SERIES) with
// nulls/defaults per §4.5.
func ParseBSEEquityBar(raw []byte, tradeDate time.Time, schemaVersion string, ingestTimeMs int64) (Result, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return Result{}, fmt.Errorf("bse equity bar: read header: %w", err)
	}
	header = trimAll(header)
	if err := CheckSchemaDrift("BSE_EQ_BAR", bseEquityBarColumns, header); err != nil {
		return Result{}, err
	}
	idx := columnIndex(header)

	b := frame.NewBuilder(EquityBarSchema)
	year, month, day := PartitionValues(tradeDate)
	filtered := 0

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("bse equity bar: read row: %w", err)
		}

		symbol := strings.TrimSpace(row[idx["SC_NAME"]])
		if symbol == "" {
			filtered++
			continue
		}

		instrumentID := strings.TrimSpace(row[idx["SC_CODE"]])
		prevClose, err := ParseOptionalFloat(row[idx["PREVCLOSE"]])
		if err != nil {
			return Result{}, err
		}
		open, err := ParseOptionalFloat(row[idx["OPEN"]])
		if err != nil {
			return Result{}, err
		}
		high, err := ParseOptionalFloat(row[idx["HIGH"]])
		if err != nil {
			return Result{}, err
		}
		low, err := ParseOptionalFloat(row[idx["LOW"]])
		if err != nil {
			return Result{}, err
		}
		closePrice, err := ParseOptionalFloat(row[idx["CLOSE"]])
		if err != nil {
			return Result{}, err
		}
		volume, err := ParseInt64(row[idx["NO_OF_SHRS"]])
		if err != nil {
			return Result{}, err
		}
		turnover, err := ParseFloat(row[idx["NET_TURNOV"]])
		if err != nil {
			return Result{}, err
		}
		trades, err := ParseInt64(row[idx["NO_TRADES"]])
		if err != nil {
			return Result{}, err
		}
		isin := strings.TrimSpace(row[idx["ISIN_CODE"]])

		entityID := fmt.Sprintf("BSE:%s", symbol)
		eventID := EventID("BSE_EQ_BAR", tradeDate, symbol)

		err = b.AppendRow(map[string]interface{}{
			"event_id":          eventID,
			"event_time":        EventTimeMs(tradeDate),
			"ingest_time":       ingestTimeMs,
			"source":            "BSE_EQ_BAR",
			"schema_version":    schemaVersion,
			"entity_id":         entityID,
			"instrument_id":     optionalString(instrumentID),
			"symbol":            symbol,
			"exchange":          "BSE",
			"isin":              optionalString(isin),
			"instrument_type":   "EQ",
			"series":            nil, // BSE bhavcopy has no series column
			"prev_close":        floatOrNil(prevClose),
			"open":              floatOrNil(open),
			"high":              floatOrNil(high),
			"low":               floatOrNil(low),
			"close":             floatOrNil(closePrice),
			"last_price":        nil, // BSE bhavcopy has no last-traded-price column
			"volume":            volume,
			"turnover":          turnover,
			"trades":            trades,
			"adjustment_factor": 1.0,
			"adjustment_date":   nil,
			"is_trading_day":    true,
			"year":              int64(year),
			"month":             int64(month),
			"day":               int64(day),
		})
		if err != nil {
			return Result{}, fmt.Errorf("bse equity bar: symbol %s: %w", symbol, err)
		}
	}

	return Result{Frame: b.Build(), FilteredRows: filtered}, nil
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

func optionalString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func floatOrNil(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
