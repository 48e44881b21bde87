// Package xlsx renders tabular rows as an Excel workbook.
package xlsx

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the name of the single worksheet.
const DefaultSheet = "Transactions"

const (
	minColWidth = 10
	maxColWidth = 60

	dateFormat   = "yyyy-mm-dd hh:mm:ss"
	amountFormat = "#,##0.00"
)

// Writer produces one-sheet workbooks: a bold, frozen header row followed
// by data rows.
type Writer struct {
	Sheet string
}

// NewWriter returns a Writer using DefaultSheet.
func NewWriter() *Writer {
	return &Writer{Sheet: DefaultSheet}
}

// Write renders columns and rows. Cells may hold strings, numbers,
// decimal.Decimal, time.Time or nil.
func (w *Writer) Write(columns []string, rows [][]any) ([]byte, error) {
	if len(columns) == 0 {
		return nil, errors.New("xlsx: no columns")
	}
	sheet := w.Sheet
	if sheet == "" {
		sheet = DefaultSheet
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	styles, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	widths := make([]int, len(columns))
	for c, name := range columns {
		if err := setCell(f, sheet, c, 1, name, styles.header); err != nil {
			return nil, err
		}
		widths[c] = utf8.RuneCountInString(name)
	}

	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("xlsx: row %d has %d values, want %d", r+1, len(row), len(columns))
		}
		for c, v := range row {
			value, style, text := cellValue(v, styles)
			if err := setCell(f, sheet, c, r+2, value, style); err != nil {
				return nil, err
			}
			widths[c] = max(widths[c], utf8.RuneCountInString(text))
		}
	}

	for c, width := range widths {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return nil, err
		}
		width = min(max(width+2, minColWidth), maxColWidth)
		if err := f.SetColWidth(sheet, col, col, float64(width)); err != nil {
			return nil, fmt.Errorf("xlsx: column width: %w", err)
		}
	}

	err = f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx: freeze header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type styleSet struct {
	header int
	date   int
	amount int
}

func newStyles(f *excelize.File) (styleSet, error) {
	var s styleSet
	var err error

	s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return s, fmt.Errorf("xlsx: header style: %w", err)
	}

	dateFmt := dateFormat
	if s.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt}); err != nil {
		return s, fmt.Errorf("xlsx: date style: %w", err)
	}

	amountFmt := amountFormat
	if s.amount, err = f.NewStyle(&excelize.Style{CustomNumFmt: &amountFmt}); err != nil {
		return s, fmt.Errorf("xlsx: amount style: %w", err)
	}
	return s, nil
}

// cellValue converts v for excelize and picks its style. text is used to
// size the column.
func cellValue(v any, s styleSet) (value any, style int, text string) {
	switch v := v.(type) {
	case nil:
		return "", 0, ""
	case decimal.Decimal:
		return v.InexactFloat64(), s.amount, v.StringFixed(2)
	case time.Time:
		return v.UTC(), s.date, dateFormat
	case string:
		return v, 0, v
	default:
		return v, 0, fmt.Sprint(v)
	}
}

func setCell(f *excelize.File, sheet string, col, row int, value any, style int) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("xlsx: set %s: %w", cell, err)
	}
	if style != 0 {
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("xlsx: style %s: %w", cell, err)
		}
	}
	return nil
}
