package sheets

import (
	"context"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/export"
)

// WorkbookWriter replaces the content of one tab of a workbook.
type WorkbookWriter interface {
	WriteSheet(ctx context.Context, name string, header []string, rows [][]any) error
}

// Sync rewrites one tab per entity of the dataset.
func Sync(ctx context.Context, w WorkbookWriter, d core.Dataset) error {
	for _, t := range export.Tables(d) {
		rows := make([][]any, len(t.Rows))
		for i, cells := range t.Rows {
			row := make([]any, len(cells))
			for j, c := range cells {
				row[j] = export.SpreadsheetValue(c)
			}
			rows[i] = row
		}
		if err := w.WriteSheet(ctx, t.Name, t.Header, rows); err != nil {
			return fmt.Errorf("write sheet %s: %w", t.Name, err)
		}
	}
	return nil
}
