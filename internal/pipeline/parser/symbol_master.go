package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// SymbolMasterRow is one row of the NSE symbol master reference table,
// joined in by internal/pipeline/refdata to enrich equity bars with a
// stable instrument_id per §6.1.
type SymbolMasterRow struct {
	Symbol         string
	ISIN           string
	InstrumentID   string
	Series         string
	InstrumentType string
	FaceValue      float64
}

var symbolMasterColumns = []string{"SYMBOL", "ISIN_NUMBER", "SERIES", "FACE_VALUE"}

// ParseSymbolMaster parses the NSE symbol master CSV into a slice of
// SymbolMasterRow, keyed by Symbol. instrument_id is derived as
// "NSE:{ISIN}" when an ISIN is present, else "NSE:{symbol}".
func ParseSymbolMaster(raw []byte) ([]SymbolMasterRow, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("symbol master: read header: %w", err)
	}
	header = trimAll(header)
	if err := CheckSchemaDrift("NSE_MASTER", symbolMasterColumns, header); err != nil {
		return nil, err
	}
	idx := columnIndex(header)

	var rows []SymbolMasterRow
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("symbol master: read row: %w", err)
		}

		symbol := strings.TrimSpace(row[idx["SYMBOL"]])
		if symbol == "" {
			continue
		}
		isin := strings.TrimSpace(row[idx["ISIN_NUMBER"]])
		series := strings.TrimSpace(row[idx["SERIES"]])
		faceValue, err := ParseFloat(row[idx["FACE_VALUE"]])
		if err != nil {
			return nil, fmt.Errorf("symbol master: symbol %s: %w", symbol, err)
		}

		instrumentID := "NSE:" + symbol
		if isin != "" {
			instrumentID = "NSE:" + isin
		}

		rows = append(rows, SymbolMasterRow{
			Symbol:         symbol,
			ISIN:           isin,
			InstrumentID:   instrumentID,
			Series:         series,
			InstrumentType: "EQ",
			FaceValue:      faceValue,
		})
	}

	return rows, nil
}
