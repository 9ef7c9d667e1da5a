package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"fintrack/internal/core"
)

const sectionPrefix = "#"

// WriteCSV writes one section per entity: a "#NAME" line, the header row and
// the data rows, separated by blank lines.
func WriteCSV(w io.Writer, d core.Dataset) error {
	cw := csv.NewWriter(w)
	for i, t := range Tables(d) {
		if i > 0 {
			cw.Flush()
			if _, err := io.WriteString(w, "\n"); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
		}
		if err := cw.Write([]string{sectionPrefix + t.Name}); err != nil {
			return fmt.Errorf("write csv section %s: %w", t.Name, err)
		}
		if err := cw.WriteAll(stringRows(t)); err != nil {
			return fmt.Errorf("write csv section %s: %w", t.Name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ReadCSV parses the sectioned layout written by WriteCSV.
func ReadCSV(r io.Reader) (core.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	raw := map[string][][]string{}
	section := ""
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.Dataset{}, core.FileFormatError(opImport, "malformed csv: %v", err)
		}
		if len(rec) == 1 && strings.HasPrefix(rec[0], sectionPrefix) {
			section = strings.ToUpper(strings.TrimPrefix(rec[0], sectionPrefix))
			if _, dup := raw[section]; dup {
				return core.Dataset{}, core.FileFormatError(opImport, "duplicate %s section", section)
			}
			raw[section] = [][]string{}
			continue
		}
		if section == "" {
			return core.Dataset{}, core.FileFormatError(opImport, "data before the first section")
		}
		raw[section] = append(raw[section], rec)
	}
	return ParseTables(raw)
}
