package source

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Workbook is every sheet of an XLSX file, keyed by sheet name.
type Workbook struct {
	Names  []string // workbook order
	Sheets map[string][][]string
}

// ReadWorkbook opens an XLSX file once and reads all of its sheets.
func ReadWorkbook(path string) (*Workbook, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	wb := &Workbook{Sheets: make(map[string][][]string, len(f.Sheets))}
	for _, sheet := range f.Sheets {
		wb.Names = append(wb.Names, sheet.Name)
		wb.Sheets[sheet.Name] = sheetRows(sheet)
	}
	return wb, nil
}

func sheetRows(sheet *xlsx.Sheet) [][]string {
	var rows [][]string
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
