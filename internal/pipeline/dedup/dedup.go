// Package dedup merges equity-bar frames from multiple exchange sources
// covering the same trade date, keeping the higher-preference source's
// rows whenever its key (ISIN) collides with a lower-preference one, per
// spec §4.8. Grounded on the generics idiom in
// infrastructure/database/generic_repository.go (typed helpers
// parameterized over a row/model type), adapted from repository CRUD
// helpers to a key-indexed frame merge.
package dedup

import (
	"fmt"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
)

// SourceFrame pairs one source's frame with its name, for ordering by
// preference.
type SourceFrame struct {
	Source string
	Frame  *frame.Frame
}

// Deduplicate merges framesBySource in preferenceOrder (most preferred
// first) on keyColumn (typically "isin"): every row from the first
// non-nil frame in preference order is kept outright, then rows from
// later sources are appended only when their key value is absent or
// null in every higher-preference frame already merged. Per §4.8's edge
// cases: if every input is nil, Deduplicate returns an error; if exactly
// one is non-nil, it is returned unchanged (the step tolerates a source
// being entirely missing).
func Deduplicate(framesBySource map[string]*frame.Frame, preferenceOrder []string, keyColumn string) (*frame.Frame, error) {
	ordered := make([]SourceFrame, 0, len(preferenceOrder))
	for _, source := range preferenceOrder {
		if f, ok := framesBySource[source]; ok && f != nil {
			ordered = append(ordered, SourceFrame{Source: source, Frame: f})
		}
	}

	if len(ordered) == 0 {
		return nil, fmt.Errorf("dedup: all input frames are nil")
	}
	if len(ordered) == 1 {
		return ordered[0].Frame, nil
	}

	schema := ordered[0].Frame.Schema()
	b := frame.NewBuilder(schema)
	seen := make(map[string]bool)

	for _, sf := range ordered {
		added := make(map[string]bool)
		for row := 0; row < sf.Frame.NumRows(); row++ {
			key, hasKey := sf.Frame.StringAt(keyColumn, row)
			if hasKey && key != "" {
				if seen[key] {
					continue
				}
				added[key] = true
			}

			if err := b.AppendRow(sf.Frame.RowValues(row)); err != nil {
				return nil, fmt.Errorf("dedup: source %s row %d: %w", sf.Source, row, err)
			}
		}
		for key := range added {
			seen[key] = true
		}
	}

	return b.Build(), nil
}
