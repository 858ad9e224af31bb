package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
)

// BulkBlockDealSchema is the canonical frame schema for bulk/block deal
// disclosures, one row per (symbol, deal type, transaction side).
var BulkBlockDealSchema = frame.Schema{
	Name: "bulk_block_deal",
	Columns: []frame.Column{
		{Name: "event_id", Kind: frame.KindString},
		{Name: "event_time", Kind: frame.KindTimestampMs},
		{Name: "ingest_time", Kind: frame.KindTimestampMs},
		{Name: "source", Kind: frame.KindString},
		{Name: "schema_version", Kind: frame.KindString},
		{Name: "entity_id", Kind: frame.KindString},
		{Name: "symbol", Kind: frame.KindString},
		{Name: "client_name", Kind: frame.KindString, Nullable: true},
		{Name: "deal_type", Kind: frame.KindString},
		{Name: "transaction_type", Kind: frame.KindString},
		{Name: "quantity", Kind: frame.KindInt64},
		{Name: "price", Kind: frame.KindFloat64},
		{Name: "remarks", Kind: frame.KindString, Nullable: true},
		{Name: "year", Kind: frame.KindInt64},
		{Name: "month", Kind: frame.KindInt64},
		{Name: "day", Kind: frame.KindInt64},
	},
}

var bulkBlockDealColumns = []string{
	"SYMBOL", "CLIENT_NAME", "DEAL_TYPE", "TRANSACTION_TYPE", "QUANTITY", "PRICE", "REMARKS",
}

// ParseBulkBlockDeals parses the NSE bulk/block deal disclosure CSV
// (already Brotli-decompressed by the fetcher) into a BulkBlockDealSchema
// frame. Uniqueness key per §4.6 rule 14 is (symbol, deal_type,
// transaction_type, deal_date).
func ParseBulkBlockDeals(raw []byte, dealDate time.Time, schemaVersion string, ingestTimeMs int64) (Result, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return Result{}, fmt.Errorf("bulk/block deals: read header: %w", err)
	}
	header = trimAll(header)
	if err := CheckSchemaDrift("NSE_BULK_DEALS", bulkBlockDealColumns, header); err != nil {
		return Result{}, err
	}
	idx := columnIndex(header)

	b := frame.NewBuilder(BulkBlockDealSchema)
	year, month, day := PartitionValues(dealDate)
	filtered := 0

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("bulk/block deals: read row: %w", err)
		}

		symbol := strings.TrimSpace(row[idx["SYMBOL"]])
		if symbol == "" {
			filtered++
			continue
		}

		dealType := normalizeDealType(row[idx["DEAL_TYPE"]])
		txType := normalizeTransactionType(row[idx["TRANSACTION_TYPE"]])
		quantity, err := ParseInt64(row[idx["QUANTITY"]])
		if err != nil {
			return Result{}, err
		}
		price, err := ParseFloat(row[idx["PRICE"]])
		if err != nil {
			return Result{}, err
		}
		clientName := strings.TrimSpace(row[idx["CLIENT_NAME"]])
		remarks := strings.TrimSpace(row[idx["REMARKS"]])

		businessKey := fmt.Sprintf("%s:%s:%s", symbol, dealType, txType)
		entityID := fmt.Sprintf("NSE:%s", symbol)
		eventID := EventID("NSE_BULK_DEALS", dealDate, businessKey)

		err = b.AppendRow(map[string]interface{}{
			"event_id":         eventID,
			"event_time":       EventTimeMs(dealDate),
			"ingest_time":      ingestTimeMs,
			"source":           "NSE_BULK_DEALS",
			"schema_version":   schemaVersion,
			"entity_id":        entityID,
			"symbol":           symbol,
			"client_name":      optionalString(clientName),
			"deal_type":        string(dealType),
			"transaction_type": string(txType),
			"quantity":         quantity,
			"price":            price,
			"remarks":          optionalString(remarks),
			"year":             int64(year),
			"month":            int64(month),
			"day":              int64(day),
		})
		if err != nil {
			return Result{}, fmt.Errorf("bulk/block deals: symbol %s: %w", symbol, err)
		}
	}

	return Result{Frame: b.Build(), FilteredRows: filtered}, nil
}

func normalizeDealType(raw string) model.BulkDealType {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BLOCK", "BLOCK DEAL":
		return model.DealTypeBlock
	default:
		return model.DealTypeBulk
	}
}

func normalizeTransactionType(raw string) model.TransactionType {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "S", "SELL":
		return model.TransactionSell
	default:
		return model.TransactionBuy
	}
}
