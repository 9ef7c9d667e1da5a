// Package export converts the dataset to and from tabular formats: sectioned
// CSV, an XLSX workbook and the rows synced to Google Sheets.
package export

import (
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

const (
	SheetAccounts     = "ACCOUNTS"
	SheetCategories   = "CATEGORIES"
	SheetTransactions = "TRANSACTIONS"
	SheetBudgets      = "BUDGETS"
	SheetSettings     = "SETTINGS"
)

var (
	accountHeader     = []string{"id", "name", "type", "balance", "currency", "archived", "created_at", "updated_at"}
	categoryHeader    = []string{"id", "name", "type", "icon", "color", "parent_id", "order_index", "archived", "monthly_budget"}
	transactionHeader = []string{"id", "amount", "type", "category_id", "account_id", "to_account_id", "date", "note", "tags", "location", "attachments", "created_at", "updated_at"}
	budgetHeader      = []string{"id", "category_id", "year_month", "amount", "notify_threshold", "note", "enabled", "created_at", "updated_at"}
	settingHeader     = []string{"key", "value"}
)

// Table is one entity's rows. Cells are nil (empty), string, int64, bool,
// float64 or core.Money.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Tables lays the dataset out as one table per entity.
func Tables(d core.Dataset) []Table {
	accounts := Table{Name: SheetAccounts, Header: accountHeader}
	for _, a := range d.Accounts {
		accounts.Rows = append(accounts.Rows, []any{
			a.ID, a.Name, string(a.Type), a.Balance, a.Currency, a.Archived, timeCell(a.CreatedAt), timeCell(a.UpdatedAt),
		})
	}

	categories := Table{Name: SheetCategories, Header: categoryHeader}
	for _, c := range d.Categories {
		var budget any
		if c.MonthlyBudget != nil {
			budget = *c.MonthlyBudget
		}
		categories.Rows = append(categories.Rows, []any{
			c.ID, c.Name, string(c.Type), c.Icon, c.Color, idCell(c.ParentID), int64(c.OrderIndex), c.Archived, budget,
		})
	}

	transactions := Table{Name: SheetTransactions, Header: transactionHeader}
	for _, t := range d.Transactions {
		transactions.Rows = append(transactions.Rows, []any{
			t.ID, t.Amount, string(t.Type), idCell(t.CategoryID), t.AccountID, idCell(t.ToAccountID), timeCell(t.Date),
			t.Note, strings.Join(t.Tags, core.ListSeparator), t.Location, strings.Join(t.Attachments, core.ListSeparator),
			timeCell(t.CreatedAt), timeCell(t.UpdatedAt),
		})
	}

	budgets := Table{Name: SheetBudgets, Header: budgetHeader}
	for _, b := range d.Budgets {
		var threshold any
		if b.NotifyThreshold != nil {
			threshold = *b.NotifyThreshold
		}
		budgets.Rows = append(budgets.Rows, []any{
			b.ID, idCell(b.CategoryID), b.Period.String(), b.Amount, threshold, b.Note, b.Enabled,
			timeCell(b.CreatedAt), timeCell(b.UpdatedAt),
		})
	}

	tables := []Table{accounts, categories, transactions, budgets}
	if d.Settings != nil {
		settings := Table{Name: SheetSettings, Header: settingHeader}
		for _, k := range sortedKeys(d.Settings) {
			settings.Rows = append(settings.Rows, []any{k, d.Settings[k]})
		}
		tables = append(tables, settings)
	}
	return tables
}

func idCell(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func timeCell(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// FormatCell renders a cell as text.
func FormatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case core.Money:
		return v.String()
	}
	return ""
}

// SpreadsheetValue converts a cell to a value a spreadsheet stores natively.
func SpreadsheetValue(v any) any {
	switch v := v.(type) {
	case nil:
		return ""
	case core.Money:
		return v.Float64()
	}
	return v
}
