package parser

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
)

// CorporateActionSchema is the canonical frame schema for a declared
// corporate action (split, bonus, dividend, ...), parsed from the
// exchange's XBRL quarterly-disclosure feed.
var CorporateActionSchema = frame.Schema{
	Name: "corporate_action",
	Columns: []frame.Column{
		{Name: "event_id", Kind: frame.KindString},
		{Name: "event_time", Kind: frame.KindTimestampMs},
		{Name: "ingest_time", Kind: frame.KindTimestampMs},
		{Name: "source", Kind: frame.KindString},
		{Name: "schema_version", Kind: frame.KindString},
		{Name: "entity_id", Kind: frame.KindString},
		{Name: "symbol", Kind: frame.KindString},
		{Name: "isin", Kind: frame.KindString, Nullable: true},
		{Name: "action_type", Kind: frame.KindString},
		{Name: "ratio", Kind: frame.KindString, Nullable: true},
		{Name: "adjustment_factor", Kind: frame.KindFloat64},
		{Name: "year", Kind: frame.KindInt64},
		{Name: "month", Kind: frame.KindInt64},
		{Name: "day", Kind: frame.KindInt64},
	},
}

// xbrlDisclosure mirrors the handful of fields this pipeline needs out of
// an NSE/BSE quarterly XBRL corporate-action disclosure document; it
// ignores every other XBRL context/unit/fact element.
type xbrlDisclosure struct {
	XMLName xml.Name `xml:"CorporateActionDisclosure"`
	Actions []struct {
		Symbol           string  `xml:"Symbol"`
		ISIN             string  `xml:"ISIN"`
		ActionType       string  `xml:"PurposeOfTheMeeting"`
		Ratio            string  `xml:"FaceValue"`
		ExDate           string  `xml:"ExDate"`
		AdjustmentFactor float64 `xml:"AdjustmentFactor"`
	} `xml:"Action"`
}

// ParseCorporateActions parses an XBRL quarterly corporate-action
// disclosure document into a CorporateActionSchema frame.
func ParseCorporateActions(raw []byte, schemaVersion string, ingestTimeMs int64) (Result, error) {
	var doc xbrlDisclosure
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return Result{}, fmt.Errorf("corporate actions: parse xbrl: %w", err)
	}

	b := frame.NewBuilder(CorporateActionSchema)
	filtered := 0

	for _, a := range doc.Actions {
		if a.Symbol == "" {
			filtered++
			continue
		}
		exDate, err := time.Parse("02-01-2006", a.ExDate)
		if err != nil {
			return Result{}, fmt.Errorf("corporate actions: symbol %s: parse ex-date: %w", a.Symbol, err)
		}
		year, month, day := PartitionValues(exDate)

		adjustmentFactor := a.AdjustmentFactor
		if adjustmentFactor == 0 {
			adjustmentFactor = 1.0
		}

		businessKey := fmt.Sprintf("%s:%s:%s", a.Symbol, a.ActionType, a.ExDate)
		entityID := fmt.Sprintf("NSE:%s", a.Symbol)
		eventID := EventID("NSE_CORPORATE_ACTIONS", exDate, businessKey)

		err = b.AppendRow(map[string]interface{}{
			"event_id":          eventID,
			"event_time":        EventTimeMs(exDate),
			"ingest_time":       ingestTimeMs,
			"source":            "NSE_CORPORATE_ACTIONS",
			"schema_version":    schemaVersion,
			"entity_id":         entityID,
			"symbol":            a.Symbol,
			"isin":              optionalString(a.ISIN),
			"action_type":       a.ActionType,
			"ratio":             optionalString(a.Ratio),
			"adjustment_factor": adjustmentFactor,
			"year":              int64(year),
			"month":             int64(month),
			"day":               int64(day),
		})
		if err != nil {
			return Result{}, fmt.Errorf("corporate actions: symbol %s: %w", a.Symbol, err)
		}
	}

	return Result{Frame: b.Build(), FilteredRows: filtered}, nil
}
