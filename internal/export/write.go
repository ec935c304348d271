package export

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatBoth = "both"
)

// WorkbookName is the file name of the XLSX output.
const WorkbookName = "pfs_derivation.xlsx"

// WriteCSV writes a table with its header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return eris.Wrapf(err, "export: write %s header", t.Name)
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write %s row", t.Name)
		}
	}
	cw.Flush()
	return eris.Wrapf(cw.Error(), "export: flush %s", t.Name)
}

// WriteCSVFile writes a table to dir/<name>.csv.
func WriteCSVFile(dir string, t Table) (string, error) {
	path := filepath.Join(dir, t.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "export: create file")
	}

	if err := WriteCSV(f, t); err != nil {
		f.Close() //nolint:errcheck
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "export: close %s", path)
	}
	return path, nil
}

// WriteWorkbook writes every table as a sheet of one XLSX file.
func WriteWorkbook(path string, tables ...Table) error {
	f := xlsx.NewFile()
	for _, t := range tables {
		sheet, err := f.AddSheet(t.Name)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", t.Name)
		}
		addRow(sheet, t.Columns)
		for _, row := range t.Rows {
			addRow(sheet, row)
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}

// WriteAll writes the tables to dir in the given format and returns the
// written paths.
func WriteAll(dir, format string, tables ...Table) ([]string, error) {
	switch format {
	case FormatCSV, FormatXLSX, FormatBoth:
	default:
		return nil, eris.Errorf("export: unsupported format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create output dir")
	}

	var paths []string
	if format == FormatCSV || format == FormatBoth {
		for _, t := range tables {
			p, err := WriteCSVFile(dir, t)
			if err != nil {
				return paths, err
			}
			paths = append(paths, p)
		}
	}
	if format == FormatXLSX || format == FormatBoth {
		p := filepath.Join(dir, WorkbookName)
		if err := WriteWorkbook(p, tables...); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Digest returns a sha256 over the CSV rendering of the tables, in order.
func Digest(tables ...Table) (string, error) {
	h := sha256.New()
	for _, t := range tables {
		if _, err := io.WriteString(h, t.Name+"\n"); err != nil {
			return "", eris.Wrap(err, "export: digest")
		}
		if err := WriteCSV(h, t); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
