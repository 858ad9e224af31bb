package parser

import (
	"fmt"
	"time"

	"github.com/valyala/fastjson"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
)

// OptionChainSchema is the canonical frame schema for one option-chain
// snapshot: one row per (underlying, expiry, strike, option type).
var OptionChainSchema = frame.Schema{
	Name: "option_chain_snapshot",
	Columns: []frame.Column{
		{Name: "event_id", Kind: frame.KindString},
		{Name: "event_time", Kind: frame.KindTimestampMs},
		{Name: "ingest_time", Kind: frame.KindTimestampMs},
		{Name: "source", Kind: frame.KindString},
		{Name: "schema_version", Kind: frame.KindString},
		{Name: "entity_id", Kind: frame.KindString},
		{Name: "underlying_symbol", Kind: frame.KindString},
		{Name: "underlying_value", Kind: frame.KindFloat64, Nullable: true},
		{Name: "expiry_date", Kind: frame.KindTimestampMs},
		{Name: "strike_price", Kind: frame.KindFloat64},
		{Name: "option_type", Kind: frame.KindString},
		{Name: "open_interest", Kind: frame.KindInt64},
		{Name: "change_in_oi", Kind: frame.KindInt64},
		{Name: "volume", Kind: frame.KindInt64},
		{Name: "implied_volatility", Kind: frame.KindFloat64, Nullable: true},
		{Name: "last_price", Kind: frame.KindFloat64},
		{Name: "bid_price", Kind: frame.KindFloat64, Nullable: true},
		{Name: "bid_qty", Kind: frame.KindInt64},
		{Name: "ask_price", Kind: frame.KindFloat64, Nullable: true},
		{Name: "ask_qty", Kind: frame.KindInt64},
		{Name: "year", Kind: frame.KindInt64},
		{Name: "month", Kind: frame.KindInt64},
		{Name: "day", Kind: frame.KindInt64},
	},
}

// ParseOptionChain parses the NSE option-chain JSON payload (shape:
// {"records": {"underlyingValue": ..., "data": [{"expiryDate": "...",
// "strikePrice": ..., "CE": {...}, "PE": {...}}, ...]}}) into an
// OptionChainSchema frame, emitting one row per present CE or PE side.
func ParseOptionChain(raw []byte, underlying string, snapshotTime time.Time, schemaVersion string, ingestTimeMs int64) (Result, error) {
	var p fastjson.Parser
	val, err := p.ParseBytes(raw)
	if err != nil {
		return Result{}, fmt.Errorf("option chain: parse json: %w", err)
	}

	records := val.Get("records")
	if records == nil {
		return Result{}, fmt.Errorf("option chain: missing \"records\" object")
	}

	var underlyingValue interface{}
	if uv := records.Get("underlyingValue"); uv != nil {
		if f, err := uv.Float64(); err == nil {
			underlyingValue = f
		}
	}

	data := records.GetArray("data")
	b := frame.NewBuilder(OptionChainSchema)
	year, month, day := PartitionValues(snapshotTime)
	filtered := 0

	for _, item := range data {
		expiryRaw := string(item.GetStringBytes("expiryDate"))
		expiryDate, err := time.Parse("02-Jan-2006", expiryRaw)
		if err != nil {
			filtered++
			continue
		}
		strike, err := item.Get("strikePrice").Float64()
		if err != nil {
			filtered++
			continue
		}

		for _, side := range []string{"CE", "PE"} {
			leg := item.Get(side)
			if leg == nil {
				continue
			}
			row, err := optionLegRow(leg, underlying, underlyingValue, expiryDate, strike, side, snapshotTime, schemaVersion, ingestTimeMs, year, month, day)
			if err != nil {
				return Result{}, err
			}
			if err := b.AppendRow(row); err != nil {
				return Result{}, fmt.Errorf("option chain: %s %s %v: %w", underlying, side, strike, err)
			}
		}
	}

	return Result{Frame: b.Build(), FilteredRows: filtered}, nil
}

func optionLegRow(leg *fastjson.Value, underlying string, underlyingValue interface{}, expiryDate time.Time, strike float64, side string, snapshotTime time.Time, schemaVersion string, ingestTimeMs int64, year, month, day int) (map[string]interface{}, error) {
	openInterest := leg.GetInt64("openInterest")
	changeInOI := leg.GetInt64("changeinOpenInterest")
	volume := leg.GetInt64("totalTradedVolume")
	lastPrice, _ := leg.Get("lastPrice").Float64()
	bidQty := leg.GetInt64("bidQty")
	askQty := leg.GetInt64("askQty")

	var impliedVol, bidPrice, askPrice interface{}
	if iv := leg.Get("impliedVolatility"); iv != nil {
		if f, err := iv.Float64(); err == nil {
			impliedVol = f
		}
	}
	if bp := leg.Get("bidprice"); bp != nil {
		if f, err := bp.Float64(); err == nil {
			bidPrice = f
		}
	}
	if ap := leg.Get("askPrice"); ap != nil {
		if f, err := ap.Float64(); err == nil {
			askPrice = f
		}
	}

	businessKey := fmt.Sprintf("%s:%s:%.2f:%s", underlying, expiryDate.Format("2006-01-02"), strike, side)
	entityID := businessKey
	eventID := EventID("NSE_OPTION_CHAIN", snapshotTime, businessKey)

	return map[string]interface{}{
		"event_id":            eventID,
		"event_time":          EventTimeMs(snapshotTime),
		"ingest_time":         ingestTimeMs,
		"source":              "NSE_OPTION_CHAIN",
		"schema_version":      schemaVersion,
		"entity_id":           entityID,
		"underlying_symbol":   underlying,
		"underlying_value":    underlyingValue,
		"expiry_date":         expiryDate.UnixMilli(),
		"strike_price":        strike,
		"option_type":         side,
		"open_interest":       openInterest,
		"change_in_oi":        changeInOI,
		"volume":              volume,
		"implied_volatility":  impliedVol,
		"last_price":          lastPrice,
		"bid_price":           bidPrice,
		"bid_qty":             bidQty,
		"ask_price":           askPrice,
		"ask_qty":             askQty,
		"year":                int64(year),
		"month":               int64(month),
		"day":                 int64(day),
	}, nil
}
