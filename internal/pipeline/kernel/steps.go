package kernel

// Reusable Step constructors wrapping each of internal/pipeline/{fetcher,
// parser,validator,writer,dedup,corpaction,warehouse} in the kernel's
// Step shape, so pipelines.go composes concrete pipelines by calling
// these rather than re-deriving the bag-passing/metrics/idempotency
// glue per dataset.

import (
	"context"
	"errors"
	"fmt"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/corpaction"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/dedup"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/fetcher"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/parser"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/refdata"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/validator"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/warehouse"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/writer"
	"github.com/r3e-labs/inmarket-pipeline/internal/platform/metrics"
)

func frameFromBag(rc *RunContext, key string) *frame.Frame {
	v, ok := rc.Get(key)
	if !ok {
		return nil
	}
	f, _ := v.(*frame.Frame)
	return f
}

// FetchStep fetches raw bytes via f and stores them under rawKey.
// fetcher.ErrNotFound (an exchange holiday or similarly absent date, per
// §4.4) is not an error: the step stores a "not found" marker that
// downstream ParseStep calls recognize and pass through as a zero-row
// result, so a missing date does not fail the run. WriteStep and LoadStep
// then write nothing for that date, and no idempotency marker is recorded
// for it.
func FetchStep(name string, f fetcher.Fetcher, paramsFor func(rc *RunContext) fetcher.Params, rawKey string, pm *metrics.PipelineMetrics) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			raw, err := f.Fetch(ctx, paramsFor(rc))
			if err != nil {
				if errors.Is(err, fetcher.ErrNotFound) {
					rc.Set(rawKey+"_not_found", true)
					return 0, nil
				}
				return 0, err
			}
			pm.RecordFileDownloaded(f.Source())
			rc.Set(rawKey, raw)
			return int64(len(raw)), nil
		},
	}
}

// ParseStep converts the bytes FetchStep stored under rawKey into a
// frame under frameKey, via parse. When the paired FetchStep recorded a
// not-found result, ParseStep skips parsing and stores a nil frame.
func ParseStep(name, source string, parse func(raw []byte) (parser.Result, error), rawKey, frameKey string, pm *metrics.PipelineMetrics) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			if nf, ok := rc.Get(rawKey + "_not_found"); ok {
				if b, _ := nf.(bool); b {
					rc.Set(frameKey, (*frame.Frame)(nil))
					return 0, nil
				}
			}
			rawVal, _ := rc.Get(rawKey)
			raw, _ := rawVal.([]byte)

			result, err := parse(raw)
			if err != nil {
				return 0, err
			}
			rc.Set(frameKey, result.Frame)
			rows := result.Frame.NumRows()
			pm.RecordRowsParsed(source, "ok", rows)
			pm.RecordRowsParsed(source, "filtered", result.FilteredRows)
			return int64(rows), nil
		},
	}
}

// EnrichInstrumentIDStep fetches the NSE symbol master via f and joins it
// into the equity-bar frame under frameKey to fill in instrument_id, per
// §6.1's "enrich equity bars with instrument_id via (symbol, isin) join
// and fallback symbol-only join." The symbol master's own ingest is
// independently scheduled (§6.3), so a fetch failure here degrades to an
// unenriched frame rather than failing the equity run — a stale or
// unreachable reference table is not a reason to drop a day's bars.
func EnrichInstrumentIDStep(name string, f fetcher.Fetcher, frameKey string) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			bars := frameFromBag(rc, frameKey)
			if bars == nil {
				return 0, nil
			}
			raw, err := f.Fetch(ctx, fetcher.Params{})
			if err != nil {
				rc.Logger.WithFields(map[string]interface{}{"step": name, "error": err.Error()}).
					Warn("symbol master fetch failed, continuing without instrument_id enrichment")
				return 0, nil
			}
			table, err := refdata.Load(raw)
			if err != nil {
				rc.Logger.WithFields(map[string]interface{}{"step": name, "error": err.Error()}).
					Warn("symbol master parse failed, continuing without instrument_id enrichment")
				return 0, nil
			}
			enriched, err := refdata.EnrichInstrumentID(bars, table)
			if err != nil {
				return 0, err
			}
			rc.Set(frameKey, enriched)
			return int64(enriched.NumRows()), nil
		},
	}
}

// ValidateStep runs rules over the frame under frameKey, storing the
// model.ValidationResult under frameKey+"_validation". WriteStep does not
// read that entry; quarantine routing happens inside writer.Write when its
// Options carry SchemaName and Rules. When
// opts.FailOnValidationErrors is set and any critical failure is found,
// the step itself fails the run rather than deferring that decision to
// Write.
func ValidateStep(name string, rules []validator.Rule, opts validator.Options, frameKey string) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			f := frameFromBag(rc, frameKey)
			if f == nil {
				return 0, nil
			}
			result := validator.Run(f, rules, opts)
			rc.Set(frameKey+"_validation", result)
			if opts.FailOnValidationErrors && result.CriticalFailures > 0 {
				return int64(result.TotalRows), fmt.Errorf("kernel: %d critical validation failures in %s", result.CriticalFailures, name)
			}
			return int64(result.TotalRows), nil
		},
	}
}

// WriteStep persists the frame under frameKey to Parquet via w, storing
// the produced path under outputKey and gating on the idempotency target
// idem derives from the run (nil to write unconditionally).
func WriteStep(name, table string, w *writer.Writer, optsFor func(rc *RunContext) writer.Options, frameKey, outputKey string, idem *IdempotencyTarget, pm *metrics.PipelineMetrics) Step {
	return Step{
		Name:       name,
		Idempotent: idem,
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			f := frameFromBag(rc, frameKey)
			if f == nil || f.NumRows() == 0 {
				return 0, nil
			}
			result, err := w.Write(f, optsFor(rc))
			pm.RecordParquetWrite(table, err)
			if err != nil {
				return 0, err
			}
			rc.Set(outputKey, result.OutputPath)
			return result.RowsWritten, nil
		},
	}
}

// LoadStep batch-inserts the frame under frameKey into ClickHouse via
// loader, gating on idem (nil to load unconditionally). A nil loader means
// the warehouse was not configured/reachable at startup; the step then
// skips the load entirely rather than failing the run, matching §7's
// "warehouse load is best-effort relative to the lake write."
func LoadStep(name, database, table string, loader *warehouse.Loader, mapping warehouse.TableMapping, loadOpts warehouse.LoadOptions, frameKey string, idem *IdempotencyTarget, pm *metrics.PipelineMetrics) Step {
	return Step{
		Name:       name,
		Idempotent: idem,
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			f := frameFromBag(rc, frameKey)
			if f == nil || f.NumRows() == 0 {
				return 0, nil
			}
			if loader == nil {
				rc.Logger.WithFields(map[string]interface{}{"step": name, "table": table}).
					Warn("warehouse loader not configured, skipping load")
				return 0, nil
			}
			result, err := loader.Load(ctx, f, database, mapping, loadOpts)
			pm.RecordClickHouseLoad(table, err)
			if err != nil {
				return 0, err
			}
			return result.Rows, nil
		},
	}
}

// DedupStep merges the frames stored under sourceFrameKeys (keyed by
// source name) in preferenceOrder on keyColumn, per §4.8, storing the
// merged frame under outKey. A source whose FetchStep/ParseStep recorded
// a nil frame (not-found) is treated as absent, per dedup.Deduplicate's
// "tolerate a missing source" contract.
func DedupStep(name string, sourceFrameKeys map[string]string, preferenceOrder []string, keyColumn, outKey string) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			frames := make(map[string]*frame.Frame, len(sourceFrameKeys))
			for source, bagKey := range sourceFrameKeys {
				if f := frameFromBag(rc, bagKey); f != nil {
					frames[source] = f
				}
			}
			merged, err := dedup.Deduplicate(frames, preferenceOrder, keyColumn)
			if err != nil {
				return 0, err
			}
			rc.Set(outKey, merged)
			return int64(merged.NumRows()), nil
		},
	}
}

// CorpActionAdjustStep back-adjusts the equity-bar frame under barsKey
// for corporate actions stored under eventsKey (a []corpaction.Event),
// storing the adjusted frame under outKey, per §2.12/§4.5's adjustment
// fields.
func CorpActionAdjustStep(name, barsKey, eventsKey, outKey string) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, rc *RunContext) (int64, error) {
			bars := frameFromBag(rc, barsKey)
			if bars == nil {
				return 0, nil
			}
			var events []corpaction.Event
			if ev, ok := rc.Get(eventsKey); ok {
				events, _ = ev.([]corpaction.Event)
			}
			adjusted, err := corpaction.ApplyAdjustments(bars, corpaction.CumulativeFactors(events))
			if err != nil {
				return 0, err
			}
			rc.Set(outKey, adjusted)
			return int64(adjusted.NumRows()), nil
		},
	}
}
