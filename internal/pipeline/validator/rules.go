package validator

import (
	"fmt"
	"math"
	"time"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
)

// schemaRule checks a slice's declared schema against an expected one,
// the (a) JSON-Schema-style structural leg of §4.6's three rule sources.
// Since every Frame already carries its own frame.Schema, this amounts
// to a column-presence/name check rather than a generic JSON-Schema
// validator.
type schemaRule struct {
	expected frame.Schema
}

// NewSchemaRule returns a Rule that flags any row in a slice whose frame
// does not declare every column of expected (missing required columns
// are a schema-drift condition rather than a per-row one, so a mismatch
// is reported once against row offset).
func NewSchemaRule(expected frame.Schema) Rule {
	return schemaRule{expected: expected}
}

func (schemaRule) Name() string { return "schema_conformance" }

func (r schemaRule) Apply(slice *frame.Frame, offset int) []model.ErrorDetail {
	var missing []string
	for _, col := range r.expected.Columns {
		if !slice.Schema().Has(col.Name) {
			missing = append(missing, col.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return []model.ErrorDetail{{
		RowIndex:  offset,
		Field:     "",
		Message:   fmt.Sprintf("missing declared columns: %v", missing),
		Validator: "schema_conformance",
		Severity:  model.SeverityCritical,
	}}
}

// businessRule wraps one of the fourteen named built-in checks from
// spec §4.6. check inspects a single row (by absolute index) and
// returns a non-empty message if it's violated.
type businessRule struct {
	name     string
	severity model.Severity
	columns  []string
	check    func(slice *frame.Frame, row int) (field, message string, violated bool)
}

func (r businessRule) Name() string { return r.name }

func (r businessRule) Apply(slice *frame.Frame, offset int) []model.ErrorDetail {
	for _, col := range r.columns {
		if !slice.Schema().Has(col) {
			return nil // applies only when its referenced columns exist, per §4.6
		}
	}
	var out []model.ErrorDetail
	for row := 0; row < slice.NumRows(); row++ {
		field, message, violated := r.check(slice, row)
		if !violated {
			continue
		}
		out = append(out, model.ErrorDetail{
			RowIndex:  offset + row,
			Field:     field,
			Message:   message,
			Validator: r.name,
			Severity:  r.severity,
		})
	}
	return out
}

// customRule adapts a caller-supplied closure to Rule, the (c) leg of
// §4.6's three rule sources.
type customRule struct {
	name string
	fn   func(slice *frame.Frame, offset int) []model.ErrorDetail
}

// NewCustomRule wraps a caller-registered rule function.
func NewCustomRule(name string, fn func(slice *frame.Frame, offset int) []model.ErrorDetail) Rule {
	return customRule{name: name, fn: fn}
}

func (r customRule) Name() string { return r.name }

func (r customRule) Apply(slice *frame.Frame, offset int) []model.ErrorDetail {
	return r.fn(slice, offset)
}

var priceColumns = []string{"prev_close", "open", "high", "low", "close", "last_price", "settlement_price"}

// DefaultBusinessRules returns the fourteen built-in rules from spec
// §4.6, in the order listed there. maxPriceChangePct is the threshold
// for price_continuity; 0 uses the 20% default.
func DefaultBusinessRules(maxPriceChangePct float64) []Rule {
	if maxPriceChangePct <= 0 {
		maxPriceChangePct = 0.20
	}

	return []Rule{
		businessRule{
			name: "ohlc_high_low_consistency", severity: model.SeverityCritical,
			columns: []string{"high", "low"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				high, hOK := s.Float64At("high", row)
				low, lOK := s.Float64At("low", row)
				if !hOK || !lOK {
					return "", "", false
				}
				if high < low {
					return "high", fmt.Sprintf("high %.4f < low %.4f", high, low), true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "ohlc_open_in_range", severity: model.SeverityCritical,
			columns: []string{"open", "high", "low"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				open, oOK := s.Float64At("open", row)
				high, hOK := s.Float64At("high", row)
				low, lOK := s.Float64At("low", row)
				if !oOK || !hOK || !lOK {
					return "", "", false
				}
				if open < low || open > high {
					return "open", fmt.Sprintf("open %.4f outside [%.4f, %.4f]", open, low, high), true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "ohlc_close_in_range", severity: model.SeverityCritical,
			columns: []string{"close", "high", "low"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				closePx, cOK := s.Float64At("close", row)
				high, hOK := s.Float64At("high", row)
				low, lOK := s.Float64At("low", row)
				if !cOK || !hOK || !lOK {
					return "", "", false
				}
				if closePx < low || closePx > high {
					return "close", fmt.Sprintf("close %.4f outside [%.4f, %.4f]", closePx, low, high), true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "non_negative_prices", severity: model.SeverityCritical,
			columns: nil, // checked per-column below; applies whichever price columns are present
			check: func(s *frame.Frame, row int) (string, string, bool) {
				for _, col := range priceColumns {
					if !s.Schema().Has(col) {
						continue
					}
					if v, ok := s.Float64At(col, row); ok && v < 0 {
						return col, fmt.Sprintf("%s is negative (%.4f)", col, v), true
					}
				}
				return "", "", false
			},
		},
		businessRule{
			name: "non_negative_volume", severity: model.SeverityCritical,
			columns: []string{"volume"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				v, ok := s.Int64At("volume", row)
				if ok && v < 0 {
					return "volume", fmt.Sprintf("volume is negative (%d)", v), true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "volume_when_trades", severity: model.SeverityCritical,
			columns: []string{"trades", "volume"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				trades, tOK := s.Int64At("trades", row)
				volume, vOK := s.Int64At("volume", row)
				if !tOK || !vOK {
					return "", "", false
				}
				if trades > 0 && volume <= 0 {
					return "volume", fmt.Sprintf("trades=%d but volume=%d", trades, volume), true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "turnover_reasonableness", severity: model.SeverityWarning,
			columns: []string{"turnover", "volume", "close"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				turnover, toOK := s.Float64At("turnover", row)
				volume, vOK := s.Int64At("volume", row)
				closePx, cOK := s.Float64At("close", row)
				if !toOK || !vOK || !cOK || volume <= 0 || closePx <= 0 {
					return "", "", false
				}
				expected := float64(volume) * closePx
				if math.Abs(turnover-expected)/expected > 0.01 {
					return "turnover", fmt.Sprintf("turnover %.2f deviates from volume*close %.2f by more than 1%%", turnover, expected), true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "price_continuity", severity: model.SeverityWarning,
			columns: []string{"prev_close", "close", "adjustment_factor"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				prevClose, pOK := s.Float64At("prev_close", row)
				closePx, cOK := s.Float64At("close", row)
				factor, fOK := s.Float64At("adjustment_factor", row)
				if !pOK || !cOK || !fOK || factor != 1.0 || prevClose == 0 {
					return "", "", false
				}
				change := math.Abs(closePx-prevClose) / prevClose
				if change > maxPriceChangePct {
					return "close", fmt.Sprintf("close moved %.2f%% from prev_close, exceeds %.2f%% threshold", change*100, maxPriceChangePct*100), true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "timestamp_not_future", severity: model.SeverityCritical,
			columns: []string{"event_time"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				eventTimeMs, ok := s.TimestampMsAt("event_time", row)
				if !ok {
					return "", "", false
				}
				limit := time.Now().Add(60 * time.Second).UnixMilli()
				if eventTimeMs > limit {
					return "event_time", "event_time is more than 60s in the future", true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "ingest_freshness", severity: model.SeverityWarning,
			columns: []string{"event_time"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				eventTimeMs, ok := s.TimestampMsAt("event_time", row)
				if !ok {
					return "", "", false
				}
				age := time.Since(time.UnixMilli(eventTimeMs))
				if age > 48*time.Hour {
					return "event_time", fmt.Sprintf("event is %s old, exceeds 48h freshness window", age.Round(time.Hour)), true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "date_range", severity: model.SeverityCritical,
			columns: []string{"year", "month", "day"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				year, yOK := s.Int64At("year", row)
				month, mOK := s.Int64At("month", row)
				day, dOK := s.Int64At("day", row)
				if !yOK || !mOK || !dOK {
					return "", "", false
				}
				d := time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
				floor := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
				if d.Before(floor) || d.After(time.Now().UTC()) {
					return "year", fmt.Sprintf("partition date %04d-%02d-%02d outside [1990-01-01, today]", year, month, day), true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "trading_day_completeness", severity: model.SeverityWarning,
			columns: []string{"is_trading_day", "volume"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				isTradingDay, tOK := s.BoolAt("is_trading_day", row)
				volume, vOK := s.Int64At("volume", row)
				if !tOK || !vOK {
					return "", "", false
				}
				if isTradingDay && volume <= 0 {
					return "volume", "is_trading_day=true but volume is zero", true
				}
				return "", "", false
			},
		},
		businessRule{
			name: "adjustment_factor_positive", severity: model.SeverityCritical,
			columns: []string{"adjustment_factor"},
			check: func(s *frame.Frame, row int) (string, string, bool) {
				factor, ok := s.Float64At("adjustment_factor", row)
				if ok && factor <= 0 {
					return "adjustment_factor", fmt.Sprintf("adjustment_factor %.4f is not positive", factor), true
				}
				return "", "", false
			},
		},
		newUniquenessRule(),
	}
}

// uniquenessKey groups the (source, entity_id, trade_date) tuple spec
// §4.6 rule 14 requires to be unique. trade_date is reconstructed from
// the year/month/day partition columns rather than event_time, since
// several sources emit the same event_time for every row in a slice
// (e.g. option chain snapshots) while partition date is always the
// per-row trade date.
type uniquenessKey struct {
	source     string
	entityID   string
	year       int64
	month      int64
	day        int64
}

// uniquenessRule tracks keys seen across every slice passed to Apply
// within one Run, so duplicates spanning a slice boundary are still
// caught despite the validator streaming the frame in chunks.
type uniquenessRule struct {
	seen map[uniquenessKey]int
}

func newUniquenessRule() *uniquenessRule {
	return &uniquenessRule{seen: make(map[uniquenessKey]int)}
}

func (*uniquenessRule) Name() string { return "uniqueness" }

func (r *uniquenessRule) Apply(slice *frame.Frame, offset int) []model.ErrorDetail {
	for _, col := range []string{"source", "entity_id", "year", "month", "day"} {
		if !slice.Schema().Has(col) {
			return nil
		}
	}
	var out []model.ErrorDetail
	for row := 0; row < slice.NumRows(); row++ {
		source, _ := slice.StringAt("source", row)
		entityID, _ := slice.StringAt("entity_id", row)
		year, _ := slice.Int64At("year", row)
		month, _ := slice.Int64At("month", row)
		day, _ := slice.Int64At("day", row)

		key := uniquenessKey{source: source, entityID: entityID, year: year, month: month, day: day}
		if firstRow, dup := r.seen[key]; dup {
			out = append(out, model.ErrorDetail{
				RowIndex:  offset + row,
				Field:     "entity_id",
				Message:   fmt.Sprintf("duplicate of row %d for (%s, %s, %04d-%02d-%02d)", firstRow, source, entityID, year, month, day),
				Validator: "uniqueness",
				Severity:  model.SeverityCritical,
			})
			continue
		}
		r.seen[key] = offset + row
	}
	return out
}
