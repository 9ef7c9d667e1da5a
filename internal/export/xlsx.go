package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"fintrack/internal/core"
)

// WriteXLSX writes a workbook with one sheet per entity and typed cells.
func WriteXLSX(w io.Writer, d core.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range Tables(d) {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("create sheet %s: %w", t.Name, err)
		}
		if err := writeSheet(f, t); err != nil {
			return err
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, t Table) error {
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", t.Name, err)
	}
	for i, cells := range t.Rows {
		values := make([]any, len(cells))
		for j, c := range cells {
			values[j] = SpreadsheetValue(c)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(t.Name, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", t.Name, i+2, err)
		}
	}
	return nil
}

// ReadXLSX parses a workbook written by WriteXLSX.
func ReadXLSX(r io.Reader) (core.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return core.Dataset{}, core.FileFormatError(opImport, "not a valid workbook: %v", err)
	}
	defer f.Close()

	raw := map[string][][]string{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return core.Dataset{}, core.FileFormatError(opImport, "read sheet %s: %v", name, err)
		}
		raw[name] = rows
	}
	return ParseTables(raw)
}
