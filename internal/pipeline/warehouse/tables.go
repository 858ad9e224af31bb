package warehouse

// Static per-table column mappings, per §4.9 step 2 and §6.2's warehouse
// table list. Each mapping names the warehouse-side columns a load
// expects; coerce type families mirror the frame schema each parser
// produces (internal/pipeline/parser).

// EquityOHLCMapping is shared by raw_equity_ohlc and
// normalized_equity_ohlc: both tables carry the same normalized-bar shape,
// the raw table pre- and the normalized table post- reference-data
// enrichment, per §6.2.
func EquityOHLCMapping(table string) TableMapping {
	return TableMapping{
		Table: table,
		Columns: []WarehouseColumn{
			{Name: "event_id", Type: ColumnString, Required: true},
			{Name: "event_time", Type: ColumnDateTime, Required: true},
			{Name: "ingest_time", Type: ColumnDateTime, Required: true},
			{Name: "source", Type: ColumnString, Required: true},
			{Name: "schema_version", Type: ColumnString, Required: true},
			{Name: "instrument_id", Type: ColumnString, Nullable: true},
			{Name: "symbol", Type: ColumnString, Required: true},
			{Name: "exchange", Type: ColumnString, Required: true},
			{Name: "isin", Type: ColumnString, Nullable: true},
			{Name: "instrument_type", Type: ColumnString, Nullable: true},
			{Name: "series", Type: ColumnString, Nullable: true},
			{Name: "prev_close", Type: ColumnFloat, Nullable: true},
			{Name: "open", Type: ColumnFloat, Nullable: true},
			{Name: "high", Type: ColumnFloat, Nullable: true},
			{Name: "low", Type: ColumnFloat, Nullable: true},
			{Name: "close", Type: ColumnFloat, Nullable: true},
			{Name: "last_price", Type: ColumnFloat, Nullable: true},
			{Name: "settlement_price", Type: ColumnFloat, Nullable: true},
			{Name: "volume", Type: ColumnInt, Required: true},
			{Name: "turnover", Type: ColumnFloat, Required: true},
			{Name: "trades", Type: ColumnInt, Required: true},
			{Name: "adjustment_factor", Type: ColumnFloat, Required: true},
			{Name: "adjustment_date", Type: ColumnDateTime, Nullable: true},
			{Name: "is_trading_day", Type: ColumnInt, Required: true},
			{Name: "trade_year", Type: ColumnInt, Required: true},
			{Name: "trade_month", Type: ColumnInt, Required: true},
			{Name: "trade_day", Type: ColumnInt, Required: true},
		},
		// The normalized frame names its partition columns year/month/day;
		// ClickHouse reserves those as common SQL keywords in some
		// dialects, so the warehouse schema prefixes them trade_*.
		FrameColumn: map[string]string{
			"trade_year":  "year",
			"trade_month": "month",
			"trade_day":   "day",
		},
	}
}

// FeaturesEquityIndicatorsMapping maps the derived-indicators dataset
// (§6.2's features layer) computed downstream of the normalized bar —
// the warehouse columns this loader can see are the subset already
// present on the normalized frame; indicator columns such as moving
// averages are appended by a feature-computation step upstream of Load
// and are out of this repo's distilled scope (§1, Non-goals).
func FeaturesEquityIndicatorsMapping() TableMapping {
	return TableMapping{
		Table: "features_equity_indicators",
		Columns: []WarehouseColumn{
			{Name: "event_id", Type: ColumnString, Required: true},
			{Name: "event_time", Type: ColumnDateTime, Required: true},
			{Name: "symbol", Type: ColumnString, Required: true},
			{Name: "close", Type: ColumnFloat, Nullable: true},
			{Name: "volume", Type: ColumnInt, Required: true},
			{Name: "adjustment_factor", Type: ColumnFloat, Required: true},
		},
	}
}

func BulkBlockDealsMapping() TableMapping {
	return TableMapping{
		Table: "bulk_block_deals",
		Columns: []WarehouseColumn{
			{Name: "event_id", Type: ColumnString, Required: true},
			{Name: "event_time", Type: ColumnDateTime, Required: true},
			{Name: "ingest_time", Type: ColumnDateTime, Required: true},
			{Name: "source", Type: ColumnString, Required: true},
			{Name: "schema_version", Type: ColumnString, Required: true},
			{Name: "symbol", Type: ColumnString, Required: true},
			{Name: "client_name", Type: ColumnString, Nullable: true},
			{Name: "deal_type", Type: ColumnString, Required: true},
			{Name: "transaction_type", Type: ColumnString, Required: true},
			{Name: "quantity", Type: ColumnInt, Required: true},
			{Name: "price", Type: ColumnFloat, Required: true},
			{Name: "remarks", Type: ColumnString, Nullable: true},
			{Name: "deal_year", Type: ColumnInt, Required: true},
			{Name: "deal_month", Type: ColumnInt, Required: true},
			{Name: "deal_day", Type: ColumnInt, Required: true},
		},
		FrameColumn: map[string]string{
			"deal_year":  "year",
			"deal_month": "month",
			"deal_day":   "day",
		},
	}
}

func IndexConstituentsMapping() TableMapping {
	return TableMapping{
		Table: "index_constituents",
		Columns: []WarehouseColumn{
			{Name: "event_id", Type: ColumnString, Required: true},
			{Name: "event_time", Type: ColumnDateTime, Required: true},
			{Name: "source", Type: ColumnString, Required: true},
			{Name: "schema_version", Type: ColumnString, Required: true},
			{Name: "index_name", Type: ColumnString, Required: true},
			{Name: "symbol", Type: ColumnString, Required: true},
			{Name: "series", Type: ColumnString, Nullable: true},
			{Name: "action", Type: ColumnString, Required: true},
			{Name: "weight", Type: ColumnFloat, Nullable: true},
			{Name: "effective_year", Type: ColumnInt, Required: true},
			{Name: "effective_month", Type: ColumnInt, Required: true},
			{Name: "effective_day", Type: ColumnInt, Required: true},
		},
		FrameColumn: map[string]string{
			"effective_year":  "year",
			"effective_month": "month",
			"effective_day":   "day",
		},
	}
}

func OptionChainMapping() TableMapping {
	return TableMapping{
		Table: "option_chain",
		Columns: []WarehouseColumn{
			{Name: "event_id", Type: ColumnString, Required: true},
			{Name: "event_time", Type: ColumnDateTime, Required: true},
			{Name: "source", Type: ColumnString, Required: true},
			{Name: "schema_version", Type: ColumnString, Required: true},
			{Name: "underlying_symbol", Type: ColumnString, Required: true},
			{Name: "underlying_value", Type: ColumnFloat, Nullable: true},
			{Name: "expiry_date", Type: ColumnDateTime, Required: true},
			{Name: "strike_price", Type: ColumnFloat, Required: true},
			{Name: "option_type", Type: ColumnString, Required: true},
			{Name: "open_interest", Type: ColumnInt, Required: true},
			{Name: "change_in_oi", Type: ColumnInt, Required: true},
			{Name: "volume", Type: ColumnInt, Required: true},
			{Name: "implied_volatility", Type: ColumnFloat, Nullable: true},
			{Name: "last_price", Type: ColumnFloat, Required: true},
			{Name: "bid_price", Type: ColumnFloat, Nullable: true},
			{Name: "bid_qty", Type: ColumnInt, Required: true},
			{Name: "ask_price", Type: ColumnFloat, Nullable: true},
			{Name: "ask_qty", Type: ColumnInt, Required: true},
		},
	}
}

func CorporateActionsMapping() TableMapping {
	return TableMapping{
		Table: "corporate_actions",
		Columns: []WarehouseColumn{
			{Name: "event_id", Type: ColumnString, Required: true},
			{Name: "event_time", Type: ColumnDateTime, Required: true},
			{Name: "source", Type: ColumnString, Required: true},
			{Name: "schema_version", Type: ColumnString, Required: true},
			{Name: "symbol", Type: ColumnString, Required: true},
			{Name: "isin", Type: ColumnString, Nullable: true},
			{Name: "action_type", Type: ColumnString, Required: true},
			{Name: "ratio", Type: ColumnString, Nullable: true},
			{Name: "adjustment_factor", Type: ColumnFloat, Required: true},
			{Name: "ex_year", Type: ColumnInt, Required: true},
			{Name: "ex_month", Type: ColumnInt, Required: true},
			{Name: "ex_day", Type: ColumnInt, Required: true},
		},
		FrameColumn: map[string]string{
			"ex_year":  "year",
			"ex_month": "month",
			"ex_day":   "day",
		},
	}
}

// SymbolMasterMapping maps refdata's parser.SymbolMasterRow columns
// (loaded as a frame by internal/pipeline/refdata) to the symbol_master
// reference table.
func SymbolMasterMapping() TableMapping {
	return TableMapping{
		Table: "symbol_master",
		Columns: []WarehouseColumn{
			{Name: "symbol", Type: ColumnString, Required: true},
			{Name: "isin", Type: ColumnString, Nullable: true},
			{Name: "instrument_id", Type: ColumnString, Required: true},
			{Name: "series", Type: ColumnString, Nullable: true},
			{Name: "instrument_type", Type: ColumnString, Nullable: true},
			{Name: "face_value", Type: ColumnFloat, Nullable: true},
		},
	}
}

// TradingCalendarMapping and QuarterlyFinancialsMapping are declared for
// §6.2's sink list completeness; no [MODULE] in this spec fetches or
// parses a trading-calendar or quarterly-financials source frame (they
// appear only as warehouse sink names, not as pipeline modules), so these
// mappings describe the destination shape for whichever upstream later
// produces a matching frame and are exercised only by Load's
// generic-mapping tests, not by a source-specific parser.
func TradingCalendarMapping() TableMapping {
	return TableMapping{
		Table: "trading_calendar",
		Columns: []WarehouseColumn{
			{Name: "trade_date", Type: ColumnDate, Required: true},
			{Name: "exchange", Type: ColumnString, Required: true},
			{Name: "is_trading_day", Type: ColumnInt, Required: true},
			{Name: "reason", Type: ColumnString, Nullable: true},
		},
	}
}

func QuarterlyFinancialsMapping() TableMapping {
	return TableMapping{
		Table: "quarterly_financials",
		Columns: []WarehouseColumn{
			{Name: "symbol", Type: ColumnString, Required: true},
			{Name: "fiscal_quarter", Type: ColumnString, Required: true},
			{Name: "revenue", Type: ColumnFloat, Nullable: true},
			{Name: "net_profit", Type: ColumnFloat, Nullable: true},
			{Name: "eps", Type: ColumnFloat, Nullable: true},
			{Name: "filed_at", Type: ColumnDateTime, Required: true},
		},
	}
}
