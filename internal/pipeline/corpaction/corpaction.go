// Package corpaction computes and applies corporate-action price
// adjustment factors, so an equity's historical OHLC series stays
// continuous across splits, bonus issues, and dividends rather than
// showing a spurious jump on the ex-date. Grounded on the
// champion.corporate_actions.{ca_processor,price_adjuster} design
// discovered in original_source (this pipeline's NSE/BSE parsers emit
// EquityBarEvent rows at adjustment_factor=1.0; this package restates
// historical rows onto the post-action basis once an action is known).
package corpaction

import (
	"time"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/parser"
)

// SplitAdjustment returns the price-adjustment factor for a share split
// (or reverse split) of oldShares becoming newShares: historical prices
// are divided by this factor. A 1:5 split (oldShares=1, newShares=5)
// yields 5.0; a 2:1 reverse split (oldShares=2, newShares=1) yields 0.5.
func SplitAdjustment(oldShares, newShares float64) float64 {
	if oldShares == 0 {
		return 1.0
	}
	return newShares / oldShares
}

// BonusAdjustment returns the price-adjustment factor for a bonus issue
// of newShares bonus shares per existingShares held. A 1:1 bonus
// (newShares=1, existingShares=1) yields 2.0.
func BonusAdjustment(newShares, existingShares float64) float64 {
	if existingShares == 0 {
		return 1.0
	}
	return (newShares + existingShares) / existingShares
}

// DividendAdjustment returns the price-adjustment factor for a cash
// dividend of dividendAmount against the pre-dividend closePrice.
func DividendAdjustment(dividendAmount, closePrice float64) float64 {
	if closePrice == 0 {
		return 1.0
	}
	return (closePrice - dividendAmount) / closePrice
}

// Event is one corporate action's already-computed cumulative adjustment
// factor: the product of every action's own factor for ex-dates on or
// after this one, for the given symbol.
type Event struct {
	Symbol           string
	ExDate           time.Time
	CumulativeFactor float64
}

// CumulativeFactors groups events by symbol, sorts each group by ex-date
// descending, and replaces each event's factor with the running product
// of its own factor and every later (more recent) event's factor for the
// same symbol — so a bar dated before two splits carries both splits'
// combined adjustment.
func CumulativeFactors(events []Event) []Event {
	bySymbol := make(map[string][]Event)
	for _, e := range events {
		bySymbol[e.Symbol] = append(bySymbol[e.Symbol], e)
	}

	out := make([]Event, 0, len(events))
	for _, group := range bySymbol {
		sortByExDateDesc(group)
		running := 1.0
		for i := range group {
			running *= group[i].CumulativeFactor
			group[i].CumulativeFactor = running
		}
		out = append(out, group...)
	}
	return out
}

func sortByExDateDesc(events []Event) {
	for i := 1; i < len(events); i++ {
		j := i
		for j > 0 && events[j-1].ExDate.Before(events[j].ExDate) {
			events[j-1], events[j] = events[j], events[j-1]
			j--
		}
	}
}

var adjustablePriceColumns = []string{
	"prev_close", "open", "high", "low", "close", "last_price", "settlement_price",
}

// ApplyAdjustments back-adjusts every bar in bars (an equity_bar-schema
// frame, see parser.EquityBarSchema) whose trade date precedes an
// event's ex-date: its price columns are divided by that event's
// cumulative factor and its adjustment_factor/adjustment_date columns are
// updated. Bars on or after every applicable event's ex-date, and bars
// for symbols with no matching event, are left at factor 1.0. events
// should already be cumulative (see CumulativeFactors).
func ApplyAdjustments(bars *frame.Frame, events []Event) (*frame.Frame, error) {
	bySymbol := make(map[string][]Event, len(events))
	for _, e := range events {
		bySymbol[e.Symbol] = append(bySymbol[e.Symbol], e)
	}

	b := frame.NewBuilder(parser.EquityBarSchema)
	for row := 0; row < bars.NumRows(); row++ {
		symbol, _ := bars.StringAt("symbol", row)
		year, _ := bars.Int64At("year", row)
		month, _ := bars.Int64At("month", row)
		day, _ := bars.Int64At("day", row)
		tradeDate := time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)

		factor := 1.0
		var adjustmentDate interface{}
		for _, e := range bySymbol[symbol] {
			if e.ExDate.After(tradeDate) && e.CumulativeFactor > factor {
				factor = e.CumulativeFactor
				adjustmentDate = e.ExDate.UnixMilli()
			}
		}

		values := map[string]interface{}{
			"adjustment_factor": factor,
			"adjustment_date":   adjustmentDate,
		}
		for _, col := range bars.Schema().Columns {
			if col.Name == "adjustment_factor" || col.Name == "adjustment_date" {
				continue
			}
			values[col.Name] = adjustedValue(bars, col.Name, row, factor)
		}

		if err := b.AppendRow(values); err != nil {
			return nil, err
		}
	}

	return b.Build(), nil
}

func adjustedValue(bars *frame.Frame, col string, row int, factor float64) interface{} {
	if factor != 1.0 && isAdjustablePriceColumn(col) {
		if v, ok := bars.Float64At(col, row); ok {
			return v / factor
		}
		return nil
	}

	idx := bars.ColumnIndex(col)
	if idx < 0 {
		return nil
	}
	switch bars.Schema().Columns[idx].Kind {
	case frame.KindFloat64:
		if v, ok := bars.Float64At(col, row); ok {
			return v
		}
		return nil
	case frame.KindInt64:
		if v, ok := bars.Int64At(col, row); ok {
			return v
		}
		return nil
	case frame.KindBool:
		if v, ok := bars.BoolAt(col, row); ok {
			return v
		}
		return nil
	case frame.KindTimestampMs:
		if v, ok := bars.TimestampMsAt(col, row); ok {
			return v
		}
		return nil
	default:
		if v, ok := bars.StringAt(col, row); ok {
			return v
		}
		return nil
	}
}

func isAdjustablePriceColumn(col string) bool {
	for _, c := range adjustablePriceColumns {
		if c == col {
			return true
		}
	}
	return false
}
