// Package ingest turns uploaded workbooks into normalized shipment records.
package ingest

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/retrotrack/backend/internal/models"
)

const (
	ColBaseAddress     = "Base Address"
	ColShippingAddress = "Shipping Address"
	ColStartingTime    = "Starting Time"
	ColExpectedHours   = "Expected Delivery Time (hours)"
	ColActualHours     = "Actual Delivery Time (hours)"
	ColExpectedCost    = "Expected Delivery Cost (VND)"
	ColActualCost      = "Actual Delivery Cost (VND)"
	ColMaxCostPerHour  = "Max Delivery Cost (VND/hr)"
)

// RequiredColumns must all be present in a sheet header for the sheet to be read.
var RequiredColumns = []string{
	ColBaseAddress,
	ColShippingAddress,
	ColStartingTime,
	ColExpectedHours,
	ColActualHours,
	ColExpectedCost,
	ColActualCost,
	ColMaxCostPerHour,
}

// Sheet is a raw grid read from one workbook sheet. Rows[0] is the header.
type Sheet struct {
	Name string
	Rows [][]string
}

type Result struct {
	Records       []models.ShipmentRecord `json:"records"`
	SheetsScanned int                     `json:"sheets_scanned"`
	SheetsMatched int                     `json:"sheets_matched"`
	RowsRead      int                     `json:"rows_read"`
	RowsSkipped   int                     `json:"rows_skipped"`
}

var validate = validator.New()

// Normalize reads every sheet carrying the required columns and returns the
// rows that pass validation, in sheet order then row order.
func Normalize(sheets []Sheet) Result {
	var res Result
	for _, sh := range sheets {
		res.SheetsScanned++
		if len(sh.Rows) == 0 {
			continue
		}
		idx, ok := columnIndex(sh.Rows[0])
		if !ok {
			continue
		}
		res.SheetsMatched++

		for _, row := range sh.Rows[1:] {
			if blankRow(row) {
				continue
			}
			res.RowsRead++
			rec, ok := normalizeRow(row, idx)
			if !ok {
				res.RowsSkipped++
				continue
			}
			rec.Sheet = sh.Name
			res.Records = append(res.Records, rec)
		}
	}
	return res
}

func normalizeRow(row []string, idx map[string]int) (models.ShipmentRecord, bool) {
	get := func(col string) string {
		pos := idx[col]
		if pos >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[pos])
	}

	for _, col := range RequiredColumns {
		if get(col) == "" {
			return models.ShipmentRecord{}, false
		}
	}

	start, err := parseStartingTime(get(ColStartingTime))
	if err != nil {
		return models.ShipmentRecord{}, false
	}
	expected, err := resolveDelivery(start, get(ColExpectedHours))
	if err != nil {
		return models.ShipmentRecord{}, false
	}
	actual, err := resolveDelivery(start, get(ColActualHours))
	if err != nil {
		return models.ShipmentRecord{}, false
	}

	var costs [3]float64
	for i, col := range []string{ColExpectedCost, ColActualCost, ColMaxCostPerHour} {
		v, err := parseNumber(get(col))
		if err != nil {
			return models.ShipmentRecord{}, false
		}
		costs[i] = v
	}

	rec := models.ShipmentRecord{
		BaseAddress:          get(ColBaseAddress),
		ShippingAddress:      get(ColShippingAddress),
		StartingTime:         start,
		ExpectedDeliveryTime: expected,
		ActualDeliveryTime:   actual,
		ExpectedCost:         costs[0],
		ActualCost:           costs[1],
		MaxCostPerHour:       costs[2],
	}
	if err := validate.Struct(rec); err != nil {
		return models.ShipmentRecord{}, false
	}
	return rec, true
}

// columnIndex maps each required column to its position in header. Header
// cells are compared after trimming whitespace and a leading BOM.
func columnIndex(header []string) (map[string]int, bool) {
	seen := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := seen[key]; !dup {
			seen[key] = i
		}
	}
	idx := make(map[string]int, len(RequiredColumns))
	for _, col := range RequiredColumns {
		pos, ok := seen[normalizeHeader(col)]
		if !ok {
			return nil, false
		}
		idx[col] = pos
	}
	return idx, true
}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\ufeff", "")
	return strings.ToLower(strings.TrimSpace(h))
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
