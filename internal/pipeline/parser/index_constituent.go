package parser

import (
	"fmt"
	"time"

	"github.com/valyala/fastjson"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
)

// IndexConstituentSchema is the canonical frame schema for one index
// membership snapshot: one row per (index, symbol).
var IndexConstituentSchema = frame.Schema{
	Name: "index_constituent",
	Columns: []frame.Column{
		{Name: "event_id", Kind: frame.KindString},
		{Name: "event_time", Kind: frame.KindTimestampMs},
		{Name: "ingest_time", Kind: frame.KindTimestampMs},
		{Name: "source", Kind: frame.KindString},
		{Name: "schema_version", Kind: frame.KindString},
		{Name: "entity_id", Kind: frame.KindString},
		{Name: "index_name", Kind: frame.KindString},
		{Name: "symbol", Kind: frame.KindString},
		{Name: "series", Kind: frame.KindString, Nullable: true},
		{Name: "action", Kind: frame.KindString},
		{Name: "weight", Kind: frame.KindFloat64, Nullable: true},
		{Name: "year", Kind: frame.KindInt64},
		{Name: "month", Kind: frame.KindInt64},
		{Name: "day", Kind: frame.KindInt64},
	},
}

// ParseIndexConstituents parses the NSE index constituents JSON payload
// (shape: {"data": [{"symbol": "...", "series": "...", "weightage": ...},
// ...]}) into an IndexConstituentSchema frame. Every present row is
// emitted as an "ADD"/active-membership action for effectiveDate. REMOVE
// actions are not derived: nothing compares the result against a prior
// snapshot.
func ParseIndexConstituents(raw []byte, indexName string, effectiveDate time.Time, schemaVersion string, ingestTimeMs int64) (Result, error) {
	var p fastjson.Parser
	val, err := p.ParseBytes(raw)
	if err != nil {
		return Result{}, fmt.Errorf("index constituents: parse json: %w", err)
	}

	data := val.GetArray("data")
	b := frame.NewBuilder(IndexConstituentSchema)
	year, month, day := PartitionValues(effectiveDate)
	filtered := 0

	for _, item := range data {
		symbol := string(item.GetStringBytes("symbol"))
		if symbol == "" {
			filtered++
			continue
		}
		series := string(item.GetStringBytes("series"))

		var weight interface{}
		if w := item.Get("weightage"); w != nil {
			if f, err := w.Float64(); err == nil {
				weight = f
			}
		}

		businessKey := fmt.Sprintf("%s:%s", indexName, symbol)
		entityID := fmt.Sprintf("%s:%s", indexName, symbol)
		eventID := EventID("NSE_INDEX_CONSTITUENT", effectiveDate, businessKey)

		err := b.AppendRow(map[string]interface{}{
			"event_id":       eventID,
			"event_time":     EventTimeMs(effectiveDate),
			"ingest_time":    ingestTimeMs,
			"source":         "NSE_INDEX_CONSTITUENT",
			"schema_version": schemaVersion,
			"entity_id":      entityID,
			"index_name":     indexName,
			"symbol":         symbol,
			"series":         optionalString(series),
			"action":         "ADD",
			"weight":         weight,
			"year":           int64(year),
			"month":          int64(month),
			"day":            int64(day),
		})
		if err != nil {
			return Result{}, fmt.Errorf("index constituents: symbol %s: %w", symbol, err)
		}
	}

	return Result{Frame: b.Build(), FilteredRows: filtered}, nil
}
