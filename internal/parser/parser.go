// Package parser turns one fixed-width export line into a typed record.
package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/dgt-data/matriculas/internal/schema"
)

// DateLayout is the day-month-year format used by the DGT export (DDMMYYYY)
const DateLayout = "02012006"

// Outcome tags how cleanly a line parsed
type Outcome int

const (
	// Clean means every non-empty field coerced to its declared type
	Clean Outcome = iota
	// Partial means at least one field was unparseable and degraded to NULL
	Partial
)

// Record is the parsed form of one line. Values holds one entry per
// schema field; NULL is represented as a nil value. Dates are
// time.Time, integers int64, reals float64.
type Record struct {
	Values  map[string]any
	Outcome Outcome
	Failed  []string // names of fields that failed coercion
}

// Flag-encoded integer fields. The export marks these with letters
// rather than digits.
var (
	newFlagFields = map[string]bool{
		"nuevo":            true,
		"persona_juridica": true,
	}
	siFlagFields = map[string]bool{
		"precintado":       true,
		"embargado":        true,
		"renting":          true,
		"titular_tutelado": true,
	}
)

// Parse slices line into the schema's fixed-width spans and coerces each
// span to its logical type. Coercion failures never abort the line: the
// field degrades to NULL and the record is tagged Partial. Lines shorter
// than the layout read missing tail spans as empty.
func Parse(line string) *Record {
	// Widths are character counts; the line has already been decoded
	// from latin-1, so index by rune, not by byte.
	runes := []rune(line)

	rec := &Record{
		Values:  make(map[string]any, len(schema.Fields())),
		Outcome: Clean,
	}

	offset := 0
	for _, f := range schema.Fields() {
		raw := ""
		if offset < len(runes) {
			end := offset + f.Width
			if end > len(runes) {
				end = len(runes)
			}
			raw = string(runes[offset:end])
		}
		offset += f.Width

		value, ok := coerce(f, strings.TrimSpace(raw))
		if !ok {
			rec.Failed = append(rec.Failed, f.Name)
			rec.Outcome = Partial
		}
		rec.Values[f.Name] = value
	}

	return rec
}

// coerce converts one trimmed span to its typed value. The bool reports
// whether coercion succeeded; an empty span is NULL, not a failure.
func coerce(f schema.Field, trimmed string) (any, bool) {
	switch f.Type {
	case schema.TypeDate:
		if trimmed == "" {
			return nil, true
		}
		t, err := time.Parse(DateLayout, trimmed)
		if err != nil {
			return nil, false
		}
		return t, true

	case schema.TypeReal:
		if trimmed == "" {
			return nil, true
		}
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, false
		}
		return v, true

	case schema.TypeInteger:
		// Flag fields encode booleans as letters and never yield NULL
		if newFlagFields[f.Name] {
			if trimmed == "N" || trimmed == "X" {
				return int64(1), true
			}
			return int64(0), true
		}
		if siFlagFields[f.Name] {
			if trimmed == "SI" || trimmed == "S" {
				return int64(1), true
			}
			return int64(0), true
		}
		if trimmed == "" {
			return nil, true
		}
		v, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, false
		}
		return v, true

	default: // TEXT
		return trimmed, true
	}
}
