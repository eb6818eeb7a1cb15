package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
)

var errNotNumeric = errors.New("not numeric")

// timestampLayouts covers ISO strings and the renderings spreadsheet
// applications commonly produce for date cells.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006.01.02 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1/2/06 15:04",
	"1/2/06",
	"01-02-06",
	"02-Jan-2006 15:04",
	"02-Jan-06",
}

// parseNumber accepts thousands separators and surrounding or embedded
// whitespace, e.g. " 400,000 ".
func parseNumber(raw string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return 0, errNotNumeric
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, errNotNumeric
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotNumeric
	}
	return v, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// parseStartingTime accepts a timestamp string or an Excel serial date.
func parseStartingTime(raw string) (time.Time, error) {
	if t, err := parseTimestamp(raw); err == nil {
		return t, nil
	}
	serial, err := parseNumber(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized starting time %q", raw)
	}
	if serial <= 0 {
		return time.Time{}, fmt.Errorf("starting time serial %v out of range", serial)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Microsecond), nil
}

// resolveDelivery turns a delivery cell into an absolute time. Numeric cells
// are hour offsets from start; anything else must be an absolute timestamp.
// Results are kept at microsecond precision, the resolution the stores hold.
func resolveDelivery(start time.Time, raw string) (time.Time, error) {
	if hours, err := parseNumber(raw); err == nil {
		return start.Add(time.Duration(math.Round(hours * float64(time.Hour)))).Truncate(time.Microsecond), nil
	}
	return parseTimestamp(raw)
}
