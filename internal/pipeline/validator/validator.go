// Package validator runs a sequence of rules over a frame.Frame and
// collects violations, per spec §4.6. Rules are a closed sum type
// (schemaRule | businessRule | customRule), all implementing the Rule
// interface, streamed in slices so a multi-million-row frame never needs
// its entire violation set materialized per rule.
package validator

import (
	"time"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/model"
)

// DefaultSliceRows is the default streaming slice size, per §4.6.
const DefaultSliceRows = 10_000

// Rule is the closed sum type every validation rule implements: a
// schema-structural check, a built-in business rule, or a
// caller-registered custom rule.
type Rule interface {
	// Name identifies the rule in ValidationResult.RulesApplied and each
	// ErrorDetail.Validator.
	Name() string
	// Apply inspects one slice of the frame (rows [offset, offset+slice.NumRows())
	// within the full frame) and returns its violations.
	Apply(slice *frame.Frame, offset int) []model.ErrorDetail
}

// Options configures one Run. MaxPriceChangePct is read by callers when
// constructing rules via DefaultBusinessRules, not by Run itself.
type Options struct {
	SliceRows              int
	MaxPriceChangePct      float64
	FailOnValidationErrors bool
}

func (o Options) sliceRows() int {
	if o.SliceRows <= 0 {
		return DefaultSliceRows
	}
	return o.SliceRows
}

// Run applies every rule to f in SliceRows-sized slices, aggregating
// violations with row indices relative to the full frame (not the
// slice), per §4.6's streaming requirement.
func Run(f *frame.Frame, rules []Rule, opts Options) model.ValidationResult {
	result := model.ValidationResult{
		TotalRows: f.NumRows(),
		Timestamp: time.Now().UTC(),
	}
	for _, r := range rules {
		result.RulesApplied = append(result.RulesApplied, r.Name())
	}

	slice := opts.sliceRows()
	criticalRows := make(map[int]bool)

	for offset := 0; offset < f.NumRows(); offset += slice {
		end := offset + slice
		if end > f.NumRows() {
			end = f.NumRows()
		}
		chunk := f.Slice(offset, end)

		for _, r := range rules {
			for _, violation := range r.Apply(chunk, offset) {
				result.ErrorDetails = append(result.ErrorDetails, violation)
				switch violation.Severity {
				case model.SeverityCritical:
					result.CriticalFailures++
					criticalRows[violation.RowIndex] = true
				case model.SeverityWarning:
					result.Warnings++
				}
			}
		}
		chunk.Release()
	}

	result.ValidRows = result.TotalRows - len(criticalRows)
	return result
}
