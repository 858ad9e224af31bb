package kernel

// Concrete Pipeline builders, one per named flow in
// config.DefaultCronExpressions except trading_calendar: fetch/parse/validate/write/load wiring
// for each of §6.1's source feeds and §6.2's warehouse sinks. Each
// builder takes Deps rather than reaching for package-level globals, so
// the scheduler (internal/scheduler) and tests can construct a Kernel and
// its Pipelines explicitly.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/corpaction"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/fetcher"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/parser"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/refdata"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/validator"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/warehouse"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/writer"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/config"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/metrics"
)

// Deps bundles the fetchers, writer, and warehouse loader a pipeline
// builder wires together. Fetchers is keyed by fetcher.Fetcher.Source().
type Deps struct {
	Config   *config.Config
	Fetchers map[string]fetcher.Fetcher
	Writer   *writer.Writer
	Loader   *warehouse.Loader
	Metrics  *metrics.PipelineMetrics
}

func (d *Deps) fetcherFor(source string) fetcher.Fetcher {
	return d.Fetchers[source]
}

func tradeDateParams(rc *RunContext) fetcher.Params {
	return fetcher.Params{Date: rc.ParamTime("date")}
}

func tradeDatePartitions(rc *RunContext) []writer.Partition {
	d := rc.ParamTime("date")
	year, month, day := parser.PartitionValues(d)
	return writer.PartitionsFromDate(year, month, day)
}

func dateKey(rc *RunContext) string {
	return rc.ParamTime("date").Format("2006-01-02")
}

// BuildEquityDailyPipeline fetches and writes each exchange's raw daily
// bar feed independently to raw_equity_ohlc, per §6.1/§6.2. It does not
// dedup or corporate-action-adjust — that is combined_equity's job, so
// the raw layer always reflects exactly what each exchange published.
func BuildEquityDailyPipeline(d *Deps) Pipeline {
	rules := []validator.Rule{validator.NewSchemaRule(parser.EquityBarSchema)}
	rules = append(rules, validator.DefaultBusinessRules(0)...)

	perSource := func(source string, fetch fetcher.Fetcher, parse func(raw []byte, tradeDate time.Time, schemaVersion string, ingestTimeMs int64) (parser.Result, error)) []Step {
		frameKey := "frame_" + source

		writeOpts := func(rc *RunContext) writer.Options {
			return writer.Options{
				BasePath:               d.Config.Lake.BasePath,
				Dataset:                "raw_equity_ohlc",
				Partitions:             tradeDatePartitions(rc),
				Compression:            lakeCompression(d.Config.Lake.Compression),
				SchemaName:             "equity_bar",
				Rules:                  rules,
				QuarantineDir:          d.Config.Lake.QuarantineDir,
				FailOnValidationErrors: false,
			}
		}
		idem := &IdempotencyTarget{
			OutputPath: func(rc *RunContext) string {
				return writer.PartitionDir(d.Config.Lake.BasePath, "raw_equity_ohlc", tradeDatePartitions(rc))
			},
			Key: func(rc *RunContext) string { return source + ":" + dateKey(rc) },
		}

		fetchParse := fetchParseStep("fetch_parse_"+source, source, fetch, tradeDateParams, frameKey, d.Metrics,
			func(raw []byte, rc *RunContext) (parser.Result, error) {
				return parse(raw, rc.ParamTime("date"), schemaVersionFor(d, source), time.Now().UTC().UnixMilli())
			})

		steps := []Step{fetchParse}
		if master := d.fetcherFor("NSE_MASTER"); master != nil {
			steps = append(steps, EnrichInstrumentIDStep("enrich_instrument_id_"+source, master, frameKey))
		}
		steps = append(steps,
			ValidateStep("validate_"+source, rules, validator.Options{}, frameKey),
			WriteStep("write_"+source, "raw_equity_ohlc", d.Writer, writeOpts, frameKey, "output_"+source, idem, d.Metrics),
			LoadStep("load_"+source, d.Config.Warehouse.Database, "raw_equity_ohlc", d.Loader,
				warehouse.EquityOHLCMapping("raw_equity_ohlc"), loadOptsFrom(d.Config), frameKey, nil, d.Metrics),
		)
		return steps
	}

	var steps []Step
	steps = append(steps, perSource("NSE_EQ_BAR", d.fetcherFor("NSE_EQ_BAR"), parser.ParseNSEEquityBar)...)
	steps = append(steps, perSource("BSE_EQ_BAR", d.fetcherFor("BSE_EQ_BAR"), parser.ParseBSEEquityBar)...)

	return Pipeline{Name: "equity_daily", Steps: steps}
}

// fetchParseStep combines a FetchStep and a date-aware ParseStep into one
// Step, for parsers (equity bars, bulk/block deals) whose schemaVersion
// and trade date come from the run's parameters rather than being fixed
// at pipeline-construction time the way ParseStep's plain func(raw
// []byte) signature assumes. fetcher.ErrNotFound still degrades to a
// zero-row result rather than failing the run, per §4.1's edge case.
func fetchParseStep(name, source string, f fetcher.Fetcher, paramsFor func(rc *RunContext) fetcher.Params, frameKey string, pm *metrics.PipelineMetrics, parse func(raw []byte, rc *RunContext) (parser.Result, error)) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			raw, err := f.Fetch(ctx, paramsFor(rc))
			if err != nil {
				if errors.Is(err, fetcher.ErrNotFound) {
					rc.Set(frameKey, (*frame.Frame)(nil))
					return 0, nil
				}
				return 0, err
			}
			pm.RecordFileDownloaded(f.Source())
			result, err := parse(raw, rc)
			if err != nil {
				return 0, err
			}
			pm.RecordRowsParsed(source, "ok", result.Frame.NumRows())
			pm.RecordRowsParsed(source, "filtered", result.FilteredRows)
			rc.Set(frameKey, result.Frame)
			return int64(result.Frame.NumRows()), nil
		},
	}
}

func schemaVersionFor(d *Deps, source string) string {
	if sc, ok := d.Config.Sources[source]; ok {
		return sc.SchemaVersion
	}
	return "v1"
}

func lakeCompression(name string) writer.Compression {
	switch name {
	case "gzip":
		return writer.CompressionGzip
	case "zstd":
		return writer.CompressionZstd
	default:
		return writer.CompressionSnappy
	}
}

func loadOptsFrom(cfg *config.Config) warehouse.LoadOptions {
	return warehouse.LoadOptions{BatchRows: cfg.Warehouse.BatchRows}
}

// BuildBulkBlockDealsPipeline fetches, parses, validates, writes, and
// loads the NSE bulk/block deal disclosure feed, per §6.1/§6.2.
func BuildBulkBlockDealsPipeline(d *Deps) Pipeline {
	rules := []validator.Rule{validator.NewSchemaRule(parser.BulkBlockDealSchema)}

	writeOpts := func(rc *RunContext) writer.Options {
		return writer.Options{
			BasePath:    d.Config.Lake.BasePath,
			Dataset:     "bulk_block_deals",
			Partitions:  tradeDatePartitions(rc),
			Compression: lakeCompression(d.Config.Lake.Compression),
			SchemaName:  "bulk_block_deals",
			Rules:       rules,
		}
	}
	idem := &IdempotencyTarget{
		OutputPath: func(rc *RunContext) string {
			return writer.PartitionDir(d.Config.Lake.BasePath, "bulk_block_deals", tradeDatePartitions(rc))
		},
		Key: dateKey,
	}

	return Pipeline{
		Name: "bulk_block_deals",
		Steps: []Step{
			fetchParseStep("fetch_parse_nse_bulk_deals", "NSE_BULK_DEALS", d.fetcherFor("NSE_BULK_DEALS"), tradeDateParams, "frame_bulk_deals", d.Metrics,
				func(raw []byte, rc *RunContext) (parser.Result, error) {
					return parser.ParseBulkBlockDeals(raw, rc.ParamTime("date"), schemaVersionFor(d, "NSE_BULK_DEALS"), time.Now().UTC().UnixMilli())
				}),
			ValidateStep("validate_bulk_deals", rules, validator.Options{}, "frame_bulk_deals"),
			WriteStep("write_bulk_deals", "bulk_block_deals", d.Writer, writeOpts, "frame_bulk_deals", "output_bulk_deals", idem, d.Metrics),
			LoadStep("load_bulk_deals", d.Config.Warehouse.Database, "bulk_block_deals", d.Loader,
				warehouse.BulkBlockDealsMapping(), loadOptsFrom(d.Config), "frame_bulk_deals", nil, d.Metrics),
		},
	}
}

// BuildIndexConstituentsPipeline fans out over rc.Params["indices"]
// ([]string), fetching and parsing each index's constituent list
// concurrently (bounded by Kernel.Concurrency, default §5's 4), merges
// the results, then writes/loads the union, per §6.1/§6.2.
func BuildIndexConstituentsPipeline(k *Kernel, d *Deps) Pipeline {
	rules := []validator.Rule{validator.NewSchemaRule(parser.IndexConstituentSchema)}

	writeOpts := func(rc *RunContext) writer.Options {
		return writer.Options{
			BasePath:    d.Config.Lake.BasePath,
			Dataset:     "index_constituents",
			Partitions:  tradeDatePartitions(rc),
			Compression: lakeCompression(d.Config.Lake.Compression),
			SchemaName:  "index_constituents",
			Rules:       rules,
		}
	}
	idem := &IdempotencyTarget{
		OutputPath: func(rc *RunContext) string {
			return writer.PartitionDir(d.Config.Lake.BasePath, "index_constituents", tradeDatePartitions(rc))
		},
		Key: dateKey,
	}

	fetchParse := Step{
		Name: "fetch_parse_index_constituents",
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			indices, _ := rc.Params["indices"].([]string)
			if len(indices) == 0 {
				return 0, nil
			}
			f := d.fetcherFor("NSE_INDEX_CONSTITUENT")
			tradeDate := rc.ParamTime("date")
			schemaVersion := schemaVersionFor(d, "NSE_INDEX_CONSTITUENT")
			ingestTimeMs := time.Now().UTC().UnixMilli()

			frames, errs := RunConcurrent(ctx, k, indices, func(ctx context.Context, index string) (*frame.Frame, error) {
				raw, err := f.Fetch(ctx, fetcher.Params{Symbol: index})
				if err != nil {
					return nil, err
				}
				d.Metrics.RecordFileDownloaded(f.Source())
				result, err := parser.ParseIndexConstituents(raw, index, tradeDate, schemaVersion, ingestTimeMs)
				if err != nil {
					return nil, err
				}
				d.Metrics.RecordRowsParsed("NSE_INDEX_CONSTITUENT", "ok", result.Frame.NumRows())
				return result.Frame, nil
			})
			if len(errs) > 0 {
				return 0, fmt.Errorf("kernel: %d of %d index constituent fetches failed: %w", len(errs), len(indices), errs[0])
			}
			merged, err := frame.Concat(frames...)
			if err != nil {
				return 0, err
			}
			rc.Set("frame_index_constituents", merged)
			return int64(merged.NumRows()), nil
		},
	}

	return Pipeline{
		Name: "index_constituents",
		Steps: []Step{
			fetchParse,
			ValidateStep("validate_index_constituents", rules, validator.Options{}, "frame_index_constituents"),
			WriteStep("write_index_constituents", "index_constituents", d.Writer, writeOpts, "frame_index_constituents", "output_index_constituents", idem, d.Metrics),
			LoadStep("load_index_constituents", d.Config.Warehouse.Database, "index_constituents", d.Loader,
				warehouse.IndexConstituentsMapping(), loadOptsFrom(d.Config), "frame_index_constituents", nil, d.Metrics),
		},
	}
}

// BuildOptionChainPipeline fans out over rc.Params["underlyings"]
// ([]string) the same way BuildIndexConstituentsPipeline does, per
// §5/§6.1/§6.2.
func BuildOptionChainPipeline(k *Kernel, d *Deps) Pipeline {
	rules := []validator.Rule{validator.NewSchemaRule(parser.OptionChainSchema)}

	writeOpts := func(rc *RunContext) writer.Options {
		return writer.Options{
			BasePath:    d.Config.Lake.BasePath,
			Dataset:     "option_chain",
			Partitions:  tradeDatePartitions(rc),
			Compression: lakeCompression(d.Config.Lake.Compression),
			SchemaName:  "option_chain",
			Rules:       rules,
		}
	}
	idem := &IdempotencyTarget{
		OutputPath: func(rc *RunContext) string {
			return writer.PartitionDir(d.Config.Lake.BasePath, "option_chain", tradeDatePartitions(rc))
		},
		Key: dateKey,
	}

	fetchParse := Step{
		Name: "fetch_parse_option_chain",
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			underlyings, _ := rc.Params["underlyings"].([]string)
			if len(underlyings) == 0 {
				return 0, nil
			}
			f := d.fetcherFor("NSE_OPTION_CHAIN")
			snapshotTime := rc.ParamTime("date")
			if snapshotTime.IsZero() {
				snapshotTime = time.Now().UTC()
			}
			schemaVersion := schemaVersionFor(d, "NSE_OPTION_CHAIN")
			ingestTimeMs := time.Now().UTC().UnixMilli()

			frames, errs := RunConcurrent(ctx, k, underlyings, func(ctx context.Context, underlying string) (*frame.Frame, error) {
				raw, err := f.Fetch(ctx, fetcher.Params{Symbol: underlying})
				if err != nil {
					return nil, err
				}
				d.Metrics.RecordFileDownloaded(f.Source())
				result, err := parser.ParseOptionChain(raw, underlying, snapshotTime, schemaVersion, ingestTimeMs)
				if err != nil {
					return nil, err
				}
				d.Metrics.RecordRowsParsed("NSE_OPTION_CHAIN", "ok", result.Frame.NumRows())
				return result.Frame, nil
			})
			if len(errs) > 0 {
				return 0, fmt.Errorf("kernel: %d of %d option chain fetches failed: %w", len(errs), len(underlyings), errs[0])
			}
			merged, err := frame.Concat(frames...)
			if err != nil {
				return 0, err
			}
			rc.Set("frame_option_chain", merged)
			return int64(merged.NumRows()), nil
		},
	}

	return Pipeline{
		Name: "option_chain",
		Steps: []Step{
			fetchParse,
			ValidateStep("validate_option_chain", rules, validator.Options{}, "frame_option_chain"),
			WriteStep("write_option_chain", "option_chain", d.Writer, writeOpts, "frame_option_chain", "output_option_chain", idem, d.Metrics),
			LoadStep("load_option_chain", d.Config.Warehouse.Database, "option_chain", d.Loader,
				warehouse.OptionChainMapping(), loadOptsFrom(d.Config), "frame_option_chain", nil, d.Metrics),
		},
	}
}

// BuildCombinedEquityPipeline is the normalized layer: it re-fetches and
// re-parses both exchanges' daily bars plus the NSE corporate-action
// feed, dedups NSE-over-BSE on ISIN per §4.8, back-adjusts for corporate
// actions per §2.12/§4.5, then writes/loads normalized_equity_ohlc. It
// runs as its own scheduled flow (combined_equity, §6.3) rather than
// reusing equity_daily's frames, since a kernel run's RunContext does not
// outlive one Pipeline invocation.
func BuildCombinedEquityPipeline(d *Deps) Pipeline {
	bars := []validator.Rule{validator.NewSchemaRule(parser.EquityBarSchema)}
	bars = append(bars, validator.DefaultBusinessRules(0)...)

	writeOpts := func(rc *RunContext) writer.Options {
		return writer.Options{
			BasePath:    d.Config.Lake.BasePath,
			Dataset:     "normalized_equity_ohlc",
			Partitions:  tradeDatePartitions(rc),
			Compression: lakeCompression(d.Config.Lake.Compression),
			SchemaName:  "equity_bar",
			Rules:       bars,
		}
	}
	idem := &IdempotencyTarget{
		OutputPath: func(rc *RunContext) string {
			return writer.PartitionDir(d.Config.Lake.BasePath, "normalized_equity_ohlc", tradeDatePartitions(rc))
		},
		Key: dateKey,
	}

	fetchParseSide := func(source, bagKey string, fetch fetcher.Fetcher, parse func(raw []byte, rc *RunContext) (parser.Result, error)) Step {
		return Step{
			Name: "fetch_parse_" + source,
			Run: func(ctx context.Context, rc *RunContext) (int64, error) {
				raw, err := fetch.Fetch(ctx, tradeDateParams(rc))
				if err != nil {
					if errors.Is(err, fetcher.ErrNotFound) {
						rc.Set(bagKey, (*frame.Frame)(nil))
						return 0, nil
					}
					return 0, err
				}
				d.Metrics.RecordFileDownloaded(fetch.Source())
				result, err := parse(raw, rc)
				if err != nil {
					return 0, err
				}
				d.Metrics.RecordRowsParsed(source, "ok", result.Frame.NumRows())
				rc.Set(bagKey, result.Frame)
				return int64(result.Frame.NumRows()), nil
			},
		}
	}

	corpActionStep := Step{
		Name: "fetch_parse_corporate_actions",
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			f := d.fetcherFor("NSE_CORPORATE_ACTIONS")
			if f == nil {
				rc.Set("corp_action_events", []corpaction.Event(nil))
				return 0, nil
			}
			raw, err := f.Fetch(ctx, tradeDateParams(rc))
			if err != nil {
				if errors.Is(err, fetcher.ErrNotFound) {
					rc.Set("corp_action_events", []corpaction.Event(nil))
					return 0, nil
				}
				return 0, err
			}
			d.Metrics.RecordFileDownloaded(f.Source())
			result, err := parser.ParseCorporateActions(raw, schemaVersionFor(d, "NSE_CORPORATE_ACTIONS"), time.Now().UTC().UnixMilli())
			if err != nil {
				return 0, err
			}
			d.Metrics.RecordRowsParsed("NSE_CORPORATE_ACTIONS", "ok", result.Frame.NumRows())
			events := corporateActionEventsFromFrame(result.Frame)
			rc.Set("corp_action_events", events)
			return int64(len(events)), nil
		},
	}

	steps := []Step{
		fetchParseSide("NSE_EQ_BAR", "combined_frame_nse", d.fetcherFor("NSE_EQ_BAR"), func(raw []byte, rc *RunContext) (parser.Result, error) {
			return parser.ParseNSEEquityBar(raw, rc.ParamTime("date"), schemaVersionFor(d, "NSE_EQ_BAR"), time.Now().UTC().UnixMilli())
		}),
		fetchParseSide("BSE_EQ_BAR", "combined_frame_bse", d.fetcherFor("BSE_EQ_BAR"), func(raw []byte, rc *RunContext) (parser.Result, error) {
			return parser.ParseBSEEquityBar(raw, rc.ParamTime("date"), schemaVersionFor(d, "BSE_EQ_BAR"), time.Now().UTC().UnixMilli())
		}),
	}
	if master := d.fetcherFor("NSE_MASTER"); master != nil {
		steps = append(steps,
			EnrichInstrumentIDStep("enrich_instrument_id_nse", master, "combined_frame_nse"),
			EnrichInstrumentIDStep("enrich_instrument_id_bse", master, "combined_frame_bse"),
		)
	}
	steps = append(steps,
		corpActionStep,
		DedupStep("dedup_equity", map[string]string{
			"NSE_EQ_BAR": "combined_frame_nse",
			"BSE_EQ_BAR": "combined_frame_bse",
		}, []string{"NSE_EQ_BAR", "BSE_EQ_BAR"}, "isin", "combined_deduped"),
		CorpActionAdjustStep("adjust_corporate_actions", "combined_deduped", "corp_action_events", "combined_adjusted"),
		ValidateStep("validate_combined_equity", bars, validator.Options{}, "combined_adjusted"),
		WriteStep("write_combined_equity", "normalized_equity_ohlc", d.Writer, writeOpts, "combined_adjusted", "output_combined_equity", idem, d.Metrics),
		LoadStep("load_combined_equity", d.Config.Warehouse.Database, "normalized_equity_ohlc", d.Loader,
			warehouse.EquityOHLCMapping("normalized_equity_ohlc"), loadOptsFrom(d.Config), "combined_adjusted", nil, d.Metrics),
	)

	return Pipeline{Name: "combined_equity", Steps: steps}
}

// corporateActionEventsFromFrame converts a CorporateActionSchema frame
// into corpaction.Event values, reconstructing each row's ex-date from
// its year/month/day partition columns (the canonical partition fields
// every parser derives from the ex-date, per §4.5).
func corporateActionEventsFromFrame(f *frame.Frame) []corpaction.Event {
	if f == nil {
		return nil
	}
	events := make([]corpaction.Event, 0, f.NumRows())
	for row := 0; row < f.NumRows(); row++ {
		symbol, _ := f.StringAt("symbol", row)
		year, _ := f.Int64At("year", row)
		month, _ := f.Int64At("month", row)
		day, _ := f.Int64At("day", row)
		factor, _ := f.Float64At("adjustment_factor", row)
		if factor == 0 {
			factor = 1.0
		}
		events = append(events, corpaction.Event{
			Symbol:           symbol,
			ExDate:           time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC),
			CumulativeFactor: factor,
		})
	}
	return events
}

// BuildSymbolMasterPipeline fetches the NSE symbol master CSV and writes/
// loads it as its own reference dataset, per §6.1/§6.2. It runs
// independently of the equity pipelines that join against it (see
// EnrichInstrumentIDStep): a lag of one schedule cycle between this
// pipeline refreshing symbol_master and an equity run joining against it
// is tolerated by design, per internal/pipeline/refdata's doc comment.
func BuildSymbolMasterPipeline(d *Deps) Pipeline {
	writeOpts := func(rc *RunContext) writer.Options {
		return writer.Options{
			BasePath:    d.Config.Lake.BasePath,
			Dataset:     "symbol_master",
			Partitions:  tradeDatePartitions(rc),
			Compression: lakeCompression(d.Config.Lake.Compression),
			SchemaName:  "symbol_master",
			Rules:       []validator.Rule{validator.NewSchemaRule(refdata.SymbolMasterSchema)},
		}
	}
	idem := &IdempotencyTarget{
		OutputPath: func(rc *RunContext) string {
			return writer.PartitionDir(d.Config.Lake.BasePath, "symbol_master", tradeDatePartitions(rc))
		},
		Key: dateKey,
	}

	fetchParse := Step{
		Name: "fetch_parse_symbol_master",
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			f := d.fetcherFor("NSE_MASTER")
			raw, err := f.Fetch(ctx, fetcher.Params{})
			if err != nil {
				if errors.Is(err, fetcher.ErrNotFound) {
					rc.Set("frame_symbol_master", (*frame.Frame)(nil))
					return 0, nil
				}
				return 0, err
			}
			d.Metrics.RecordFileDownloaded(f.Source())
			table, err := refdata.Load(raw)
			if err != nil {
				return 0, err
			}
			fr, err := table.Frame()
			if err != nil {
				return 0, err
			}
			d.Metrics.RecordRowsParsed("NSE_MASTER", "ok", fr.NumRows())
			rc.Set("frame_symbol_master", fr)
			return int64(fr.NumRows()), nil
		},
	}

	return Pipeline{
		Name: "symbol_master",
		Steps: []Step{
			fetchParse,
			WriteStep("write_symbol_master", "symbol_master", d.Writer, writeOpts, "frame_symbol_master", "output_symbol_master", idem, d.Metrics),
			LoadStep("load_symbol_master", d.Config.Warehouse.Database, "symbol_master", d.Loader,
				warehouse.SymbolMasterMapping(), loadOptsFrom(d.Config), "frame_symbol_master", nil, d.Metrics),
		},
	}
}

// BuildPipelines returns every pipeline this kernel knows how to run,
// keyed by name, matching config.DefaultCronExpressions's keys (including
// symbol_master, the reference-table refresh that equity_daily and
// combined_equity join against via EnrichInstrumentIDStep) except
// trading_calendar (see DESIGN.md: no [MODULE] in this spec produces a
// trading-calendar source frame, so no pipeline builder exists for it).
func BuildPipelines(k *Kernel, d *Deps) map[string]Pipeline {
	return map[string]Pipeline{
		"equity_daily":       BuildEquityDailyPipeline(d),
		"bulk_block_deals":   BuildBulkBlockDealsPipeline(d),
		"index_constituents": BuildIndexConstituentsPipeline(k, d),
		"option_chain":       BuildOptionChainPipeline(k, d),
		"combined_equity":    BuildCombinedEquityPipeline(d),
		"symbol_master":      BuildSymbolMasterPipeline(d),
	}
}
