package ingestion

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook is the read access the pipeline needs from a spreadsheet package.
type Workbook interface {
	SheetNames() []string
	// Dimensions returns the used row and column counts of a sheet.
	Dimensions(sheet string) (rows, cols int, err error)
	// CellText returns the display text of a 1-based (row, col) cell, or ""
	// outside the used range.
	CellText(sheet string, row, col int) (string, error)
	Close() error
}

// WorkbookOpener loads a workbook from the uploaded bytes.
type WorkbookOpener func(r io.Reader) (Workbook, error)

// OpenExcelWorkbook opens an xlsx package with excelize.
func OpenExcelWorkbook(r io.Reader) (Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	return &excelWorkbook{file: f, rows: make(map[string][][]string), date1904: date1904}, nil
}

type excelWorkbook struct {
	file     *excelize.File
	rows     map[string][][]string
	date1904 bool
}

func (w *excelWorkbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// sheetRows reads a sheet once; excelize streams the whole sheet per call
// so per-cell lookups go through this cache.
func (w *excelWorkbook) sheetRows(sheet string) ([][]string, error) {
	if rows, ok := w.rows[sheet]; ok {
		return rows, nil
	}
	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", sheet, err)
	}
	raw, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read raw rows from sheet %s: %w", sheet, err)
	}

	// Date cells render through their number format, which is month-first
	// for the built-in formats. They are rewritten as ISO dates instead.
	for r := range rows {
		if r >= len(raw) {
			break
		}
		for c := range rows[r] {
			if c >= len(raw[r]) || raw[r][c] == rows[r][c] {
				continue
			}
			if iso, ok := w.dateCell(sheet, r+1, c+1, raw[r][c]); ok {
				rows[r][c] = iso
			}
		}
	}

	w.rows[sheet] = rows
	return rows, nil
}

func (w *excelWorkbook) dateCell(sheet string, row, col int, raw string) (string, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || serial <= 0 {
		return "", false
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", false
	}
	styleID, err := w.file.GetCellStyle(sheet, cell)
	if err != nil || styleID == 0 {
		return "", false
	}
	style, err := w.file.GetStyle(styleID)
	if err != nil || style == nil || !isDateFormat(style.NumFmt, style.CustomNumFmt) {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(serial, w.date1904)
	if err != nil {
		return "", false
	}
	return t.Format(DateLayout), true
}

var (
	quotedFormatPattern    = regexp.MustCompile(`"[^"]*"|\\.|\[[^\]]*\]`)
	dateFormatTokenPattern = regexp.MustCompile(`[dDyY]`)
)

// isDateFormat reports whether a number format renders a date: the
// built-in date ids, or a custom code with day or year tokens outside
// quoted literals and bracketed sections.
func isDateFormat(numFmt int, custom *string) bool {
	if custom != nil && *custom != "" {
		code := quotedFormatPattern.ReplaceAllString(*custom, "")
		return dateFormatTokenPattern.MatchString(code)
	}
	switch {
	case numFmt >= 14 && numFmt <= 17, numFmt == 22:
		return true
	case numFmt >= 27 && numFmt <= 36, numFmt >= 50 && numFmt <= 58:
		return true
	}
	return false
}

func (w *excelWorkbook) Dimensions(sheet string) (int, int, error) {
	rows, err := w.sheetRows(sheet)
	if err != nil {
		return 0, 0, err
	}
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return len(rows), cols, nil
}

func (w *excelWorkbook) CellText(sheet string, row, col int) (string, error) {
	rows, err := w.sheetRows(sheet)
	if err != nil {
		return "", err
	}
	if row < 1 || row > len(rows) {
		return "", nil
	}
	cells := rows[row-1]
	if col < 1 || col > len(cells) {
		return "", nil
	}
	return cells[col-1], nil
}

func (w *excelWorkbook) Close() error {
	return w.file.Close()
}
