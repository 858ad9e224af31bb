// Package parser converts raw per-source bytes (CSV, JSON, ZIP contents
// already unwrapped by the fetcher) into a frame.Frame against an explicit
// declared schema, per spec §4.5. Every parser shares the schema-drift
// check, null-sentinel recognition, and envelope-field derivation in this
// file; per-source column mapping lives in the sibling files.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/frame"
)

// SchemaDriftError reports that a source's column header diverged from a
// parser's declared schema, per §4.5's "fail fast" obligation.
type SchemaDriftError struct {
	Source  string
	Missing []string
	Extra   []string
}

func (e *SchemaDriftError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "parser: schema drift on source %s", e.Source)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing columns: %s", strings.Join(e.Missing, ","))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, "; extra columns: %s", strings.Join(e.Extra, ","))
	}
	return b.String()
}

// nullSentinels is the set of raw string values that mean "no value",
// per §4.5.
var nullSentinels = map[string]bool{
	"-": true, "": true, "null": true, "NULL": true, "N/A": true, "NA": true,
}

// IsNullSentinel reports whether raw (after trimming whitespace) is one of
// the source-format null markers.
func IsNullSentinel(raw string) bool {
	return nullSentinels[strings.TrimSpace(raw)]
}

// CheckSchemaDrift compares a source's observed header row against the
// required column names a parser declares, returning a SchemaDriftError
// if they diverge. Columns present in required but absent from observed,
// or vice versa, are both reported.
func CheckSchemaDrift(source string, required, observed []string) error {
	requiredSet := make(map[string]bool, len(required))
	for _, c := range required {
		requiredSet[c] = true
	}
	observedSet := make(map[string]bool, len(observed))
	for _, c := range observed {
		observedSet[c] = true
	}

	var missing, extra []string
	for _, c := range required {
		if !observedSet[c] {
			missing = append(missing, c)
		}
	}
	for _, c := range observed {
		if !requiredSet[c] {
			extra = append(extra, c)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return &SchemaDriftError{Source: source, Missing: missing, Extra: extra}
	}
	return nil
}

// uuidNamespaceDNS is the well-known DNS namespace UUID used as the UUIDv5
// seed per §4.5.
var uuidNamespaceDNS = uuid.NameSpaceDNS

// EventID derives the deterministic UUIDv5 event_id for one row:
// UUIDv5(namespace=DNS, name="{source}:{tradeDate}:{businessKey}").
func EventID(source string, tradeDate time.Time, businessKey string) string {
	name := fmt.Sprintf("%s:%s:%s", source, tradeDate.Format("2006-01-02"), businessKey)
	return uuid.NewSHA1(uuidNamespaceDNS, []byte(name)).String()
}

// EventTimeMs returns midnight(tradeDate) in epoch milliseconds, the
// canonical event_time per §4.5.
func EventTimeMs(tradeDate time.Time) int64 {
	midnight := time.Date(tradeDate.Year(), tradeDate.Month(), tradeDate.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.UnixMilli()
}

// PartitionValues returns the Hive-style (year, month, day) partition
// values derived from tradeDate, per §4.5.
func PartitionValues(tradeDate time.Time) (year, month, day int) {
	return tradeDate.Year(), int(tradeDate.Month()), tradeDate.Day()
}

// ParseOptionalFloat parses raw as a nullable float64, returning nil for
// any recognized null sentinel.
func ParseOptionalFloat(raw string) (*float64, error) {
	if IsNullSentinel(raw) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(raw, ",", "")), 64)
	if err != nil {
		return nil, fmt.Errorf("parse float %q: %w", raw, err)
	}
	return &v, nil
}

// ParseFloat parses raw as a required float64, defaulting to 0 for a null
// sentinel (the caller's validator rules, not the parser, reject zero
// prices where that is wrong).
func ParseFloat(raw string) (float64, error) {
	if IsNullSentinel(raw) {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(raw, ",", "")), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float %q: %w", raw, err)
	}
	return v, nil
}

// ParseInt64 parses raw as a required int64, defaulting to 0 for a null
// sentinel.
func ParseInt64(raw string) (int64, error) {
	if IsNullSentinel(raw) {
		return 0, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(strings.ReplaceAll(raw, ",", "")), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse int %q: %w", raw, err)
	}
	return v, nil
}

// Result is what a per-source parser returns: the built frame plus the
// count of rows filtered for having a null/empty primary symbol (not a
// validation failure, per §4.5's last bullet).
type Result struct {
	Frame        *frame.Frame
	FilteredRows int
}
