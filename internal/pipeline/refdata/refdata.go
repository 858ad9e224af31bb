// Package refdata loads the NSE symbol master reference table and joins
// it into equity-bar frames to fill in instrument_id, per §6.1's "one
// stable instrument_id per symbol, sourced from the symbol master"
// requirement. Grounded on internal/pipeline/dedup's key-indexed frame
// merge (build a lookup map once, then rewrite rows through it) adapted
// from "merge frames from multiple sources" to "enrich one frame from a
// side table."
package refdata

import (
	"fmt"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/parser"
)

// SymbolMasterSchema is the canonical frame schema for the NSE symbol
// master reference table, matching warehouse.SymbolMasterMapping()'s
// destination columns one-for-one.
var SymbolMasterSchema = frame.Schema{
	Name: "symbol_master",
	Columns: []frame.Column{
		{Name: "symbol", Kind: frame.KindString},
		{Name: "isin", Kind: frame.KindString, Nullable: true},
		{Name: "instrument_id", Kind: frame.KindString},
		{Name: "series", Kind: frame.KindString, Nullable: true},
		{Name: "instrument_type", Kind: frame.KindString, Nullable: true},
		{Name: "face_value", Kind: frame.KindFloat64, Nullable: true},
	},
}

// Table is the symbol master loaded into memory, indexed for lookup by
// both symbol and ISIN (equity-bar rows may carry either as the join
// key, depending on which exchange produced them).
type Table struct {
	rows     []parser.SymbolMasterRow
	bySymbol map[string]parser.SymbolMasterRow
	byISIN   map[string]parser.SymbolMasterRow
}

// Load parses raw symbol master CSV bytes into a Table ready for Frame
// or EnrichInstrumentID.
func Load(raw []byte) (*Table, error) {
	rows, err := parser.ParseSymbolMaster(raw)
	if err != nil {
		return nil, fmt.Errorf("refdata: load symbol master: %w", err)
	}
	return NewTable(rows), nil
}

// NewTable indexes an already-parsed symbol master row set.
func NewTable(rows []parser.SymbolMasterRow) *Table {
	t := &Table{
		rows:     rows,
		bySymbol: make(map[string]parser.SymbolMasterRow, len(rows)),
		byISIN:   make(map[string]parser.SymbolMasterRow, len(rows)),
	}
	for _, r := range rows {
		t.bySymbol[r.Symbol] = r
		if r.ISIN != "" {
			t.byISIN[r.ISIN] = r
		}
	}
	return t
}

// Lookup resolves a symbol master row by symbol, falling back to isin
// when the symbol itself is not in the table (e.g. a BSE row whose
// SC_NAME doesn't exactly match the NSE symbol master's SYMBOL column).
func (t *Table) Lookup(symbol, isin string) (parser.SymbolMasterRow, bool) {
	if r, ok := t.bySymbol[symbol]; ok {
		return r, true
	}
	if isin != "" {
		if r, ok := t.byISIN[isin]; ok {
			return r, true
		}
	}
	return parser.SymbolMasterRow{}, false
}

// Frame builds a SymbolMasterSchema frame from the table's rows, for
// writing/loading the symbol_master dataset per §6.2.
func (t *Table) Frame() (*frame.Frame, error) {
	b := frame.NewBuilder(SymbolMasterSchema)
	for _, r := range t.rows {
		values := map[string]interface{}{
			"symbol":          r.Symbol,
			"instrument_id":   r.InstrumentID,
			"instrument_type": r.InstrumentType,
			"face_value":      r.FaceValue,
		}
		if r.ISIN != "" {
			values["isin"] = r.ISIN
		}
		if r.Series != "" {
			values["series"] = r.Series
		}
		if err := b.AppendRow(values); err != nil {
			return nil, fmt.Errorf("refdata: append symbol master row for %s: %w", r.Symbol, err)
		}
	}
	return b.Build(), nil
}

// EnrichInstrumentID rewrites bars (an EquityBarSchema frame) with
// instrument_id filled in from t wherever the bar's own instrument_id is
// empty, keyed on the bar's symbol/isin. Rows with no matching symbol
// master entry are left unchanged — a missing reference row is not
// treated as an error, since the symbol master's own fetch is
// independently scheduled and may lag a newly-listed symbol by a cycle.
func EnrichInstrumentID(bars *frame.Frame, t *Table) (*frame.Frame, error) {
	if bars == nil || t == nil {
		return bars, nil
	}

	b := frame.NewBuilder(bars.Schema())
	for row := 0; row < bars.NumRows(); row++ {
		values := bars.RowValues(row)
		if existing, _ := values["instrument_id"].(string); existing == "" {
			symbol, _ := values["symbol"].(string)
			isin, _ := values["isin"].(string)
			if ref, ok := t.Lookup(symbol, isin); ok {
				values["instrument_id"] = ref.InstrumentID
			}
		}
		if err := b.AppendRow(values); err != nil {
			return nil, fmt.Errorf("refdata: enrich row %d: %w", row, err)
		}
	}
	return b.Build(), nil
}
