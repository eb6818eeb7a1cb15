package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ParseError reports a workbook that could not be read at all. Nothing from
// such a file is persisted.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SupportedExtension reports whether name carries one of the accepted
// workbook extensions.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls":
		return true
	}
	return false
}

// NormalizeFile reads the workbook at path and normalizes every sheet.
func NormalizeFile(path string) (Result, error) {
	sheets, err := ReadWorkbook(path)
	if err != nil {
		return Result{}, err
	}
	return Normalize(sheets), nil
}

func ReadWorkbook(path string) ([]Sheet, error) {
	var (
		sheets []Sheet
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		sheets, err = readXLSX(path)
	case ".xls":
		sheets, err = readXLS(path)
	default:
		err = fmt.Errorf("unsupported extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return sheets, nil
}

func readXLSX(path string) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dates := dateStyles{f: f, known: map[int]bool{}}
	var out []Sheet
	for _, name := range f.GetSheetList() {
		// raw values keep date cells as serials instead of whatever the
		// cell's display format renders
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		for r, row := range rows {
			for c, v := range row {
				if ts, ok := dates.resolve(name, c, r, v); ok {
					row[c] = ts
				}
			}
		}
		out = append(out, Sheet{Name: name, Rows: rows})
	}
	return out, nil
}

// builtInDateFormats are the predefined number format ids that render a
// date or a time of day.
var builtInDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

// dateStyles caches, per style index, whether a cell's number format is a
// date format.
type dateStyles struct {
	f     *excelize.File
	known map[int]bool
}

// resolve rewrites a numeric cell carrying a date format as an ISO
// timestamp. Other cells are left alone.
func (d dateStyles) resolve(sheet string, col, row int, raw string) (string, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || serial < 0 {
		return "", false
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return "", false
	}
	idx, err := d.f.GetCellStyle(sheet, cell)
	if err != nil || idx == 0 {
		return "", false
	}
	isDate, ok := d.known[idx]
	if !ok {
		if st, err := d.f.GetStyle(idx); err == nil {
			isDate = builtInDateFormats[st.NumFmt] || (st.CustomNumFmt != nil && isDateFormatCode(*st.CustomNumFmt))
		}
		d.known[idx] = isDate
	}
	if !isDate {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02T15:04:05"), true
}

// isDateFormatCode reports whether a custom number format renders a date or
// time. Quoted literals, escaped characters and bracketed sections such as
// colors or locales are ignored.
func isDateFormatCode(code string) bool {
	var (
		quoted  bool
		bracket bool
		escaped bool
	)
	for _, r := range strings.ToLower(code) {
		switch {
		case escaped:
			escaped = false
		case quoted:
			quoted = r != '"'
		case bracket:
			bracket = r != ']'
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = true
		case r == '[':
			bracket = true
		case r == 'y', r == 'd', r == 'h', r == 's', r == 'm':
			return true
		}
	}
	return false
}

// xlsRenderedMonth matches what the xls reader renders for RK cells with a
// built-in date format: only year and month survive.
var xlsRenderedMonth = regexp.MustCompile(`^\d{4}\.(0[1-9]|1[0-2])$`)

func readXLS(path string) (sheets []Sheet, err error) {
	// the xls reader panics on some malformed BIFF records
	defer func() {
		if r := recover(); r != nil {
			sheets, err = nil, fmt.Errorf("read xls: %v", r)
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, err
	}
	if wb == nil {
		return nil, errors.New("no workbook stream")
	}
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		sh := Sheet{Name: ws.Name}
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := xlsRow(ws, r)
			if row == nil {
				sh.Rows = append(sh.Rows, nil)
				continue
			}
			// LastCol is one past the last populated column
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				v := row.Col(c)
				if xlsRenderedMonth.MatchString(v) {
					v = ""
				}
				cells = append(cells, v)
			}
			sh.Rows = append(sh.Rows, cells)
		}
		sheets = append(sheets, sh)
	}
	return sheets, nil
}

// xlsRow returns nil for rows the sheet has no ROW record for; the reader
// dereferences a nil row in that case.
func xlsRow(ws *xls.WorkSheet, r int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(r)
}
