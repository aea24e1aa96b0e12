package eventlog

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// decodeXLSX reads one sheet of a workbook. Cells are read raw so date
// cells arrive as Excel serial numbers.
func decodeXLSX(data []byte, sheet string) (*table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("open xlsx: %w", err)}
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
		if sheet == "" {
			sheets := f.GetSheetList()
			if len(sheets) == 0 {
				return nil, loadErrorf("no sheets found in xlsx file")
			}
			sheet = sheets[0]
		}
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("read sheet %q: %w", sheet, err)}
	}
	if len(rows) == 0 {
		return nil, loadErrorf("sheet %q is empty: no header row", sheet)
	}

	t := &table{header: rows[0]}
	width := len(t.header)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		// Trailing empty cells are omitted by excelize; cells past the
		// header have no column and are dropped.
		cells := make([]string, width)
		copy(cells, row)
		t.rows = append(t.rows, cells)
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
