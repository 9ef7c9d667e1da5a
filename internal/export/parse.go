package export

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

const opImport = "import dataset"

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// row reads cells by header name so column order does not matter.
type row struct {
	table  string
	line   int
	index  map[string]int
	values []string
	err    error
}

func (r *row) fail(col, format string, args ...any) {
	if r.err == nil {
		args = append([]any{r.table, r.line, col}, args...)
		r.err = core.FileFormatError(opImport, "%s row %d column %s: "+format, args...)
	}
}

func (r *row) str(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.values) {
		return ""
	}
	return r.values[i]
}

func (r *row) integer(col string) int64 {
	s := strings.TrimSpace(r.str(col))
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		r.fail(col, "invalid integer %q", s)
	}
	return v
}

func (r *row) optID(col string) *int64 {
	if strings.TrimSpace(r.str(col)) == "" {
		return nil
	}
	v := r.integer(col)
	return &v
}

func (r *row) boolean(col string) bool {
	s := strings.TrimSpace(r.str(col))
	if s == "" {
		return false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		r.fail(col, "invalid boolean %q", s)
	}
	return v
}

func (r *row) money(col string) core.Money {
	m, err := core.ParseMoney(r.str(col))
	if err != nil {
		r.fail(col, "invalid amount %q", r.str(col))
	}
	return m
}

func (r *row) optMoney(col string) *core.Money {
	if strings.TrimSpace(r.str(col)) == "" {
		return nil
	}
	m := r.money(col)
	return &m
}

func (r *row) optFloat(col string) *float64 {
	s := strings.TrimSpace(r.str(col))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(col, "invalid number %q", s)
	}
	return &v
}

func (r *row) timestamp(col string) time.Time {
	s := strings.TrimSpace(r.str(col))
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.fail(col, "invalid time %q", s)
	}
	return t
}

func (r *row) list(col string) []string {
	s := r.str(col)
	if s == "" {
		return nil
	}
	return strings.Split(s, core.ListSeparator)
}

// eachRow calls fn for every data row of a table whose first row is the
// header. Required columns must all be present.
func eachRow(name string, rows [][]string, required []string, fn func(r *row)) error {
	if len(rows) == 0 {
		return nil
	}
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return core.FileFormatError(opImport, "%s is missing column %s", name, col)
		}
	}
	for i, values := range rows[1:] {
		if isBlank(values) {
			continue
		}
		r := &row{table: name, line: i + 2, index: index, values: values}
		fn(r)
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

func isBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseTables rebuilds a dataset from string tables keyed by sheet name,
// each starting with its header row. Settings stay nil when absent.
func ParseTables(raw map[string][][]string) (core.Dataset, error) {
	var d core.Dataset
	for _, name := range []string{SheetAccounts, SheetCategories, SheetTransactions, SheetBudgets} {
		if _, ok := raw[name]; !ok {
			return core.Dataset{}, core.FileFormatError(opImport, "missing %s section", name)
		}
	}

	err := eachRow(SheetAccounts, raw[SheetAccounts], []string{"id", "name", "type"}, func(r *row) {
		d.Accounts = append(d.Accounts, core.Account{
			ID:        r.integer("id"),
			Name:      r.str("name"),
			Type:      core.AccountType(r.str("type")),
			Balance:   r.money("balance"),
			Currency:  r.str("currency"),
			Archived:  r.boolean("archived"),
			CreatedAt: r.timestamp("created_at"),
			UpdatedAt: r.timestamp("updated_at"),
		})
	})
	if err != nil {
		return core.Dataset{}, err
	}

	err = eachRow(SheetCategories, raw[SheetCategories], []string{"id", "name", "type"}, func(r *row) {
		order := r.str("order_index")
		c := core.Category{
			ID:            r.integer("id"),
			Name:          r.str("name"),
			Type:          core.CategoryType(r.str("type")),
			Icon:          r.str("icon"),
			Color:         r.str("color"),
			ParentID:      r.optID("parent_id"),
			Archived:      r.boolean("archived"),
			MonthlyBudget: r.optMoney("monthly_budget"),
		}
		if strings.TrimSpace(order) != "" {
			c.OrderIndex = int(r.integer("order_index"))
		}
		d.Categories = append(d.Categories, c)
	})
	if err != nil {
		return core.Dataset{}, err
	}

	err = eachRow(SheetTransactions, raw[SheetTransactions], []string{"id", "amount", "type", "account_id", "date"}, func(r *row) {
		d.Transactions = append(d.Transactions, core.Transaction{
			ID:          r.integer("id"),
			Amount:      r.money("amount"),
			Type:        core.TransactionType(r.str("type")),
			CategoryID:  r.optID("category_id"),
			AccountID:   r.integer("account_id"),
			ToAccountID: r.optID("to_account_id"),
			Date:        r.timestamp("date"),
			Note:        r.str("note"),
			Tags:        r.list("tags"),
			Location:    r.str("location"),
			Attachments: r.list("attachments"),
			CreatedAt:   r.timestamp("created_at"),
			UpdatedAt:   r.timestamp("updated_at"),
		})
	})
	if err != nil {
		return core.Dataset{}, err
	}

	err = eachRow(SheetBudgets, raw[SheetBudgets], []string{"id", "year_month", "amount"}, func(r *row) {
		ym, perr := core.ParseYearMonth(strings.TrimSpace(r.str("year_month")))
		if perr != nil {
			r.fail("year_month", "invalid month %q", r.str("year_month"))
		}
		d.Budgets = append(d.Budgets, core.Budget{
			ID:              r.integer("id"),
			CategoryID:      r.optID("category_id"),
			Period:          ym,
			Amount:          r.money("amount"),
			NotifyThreshold: r.optFloat("notify_threshold"),
			Note:            r.str("note"),
			Enabled:         r.boolean("enabled"),
			CreatedAt:       r.timestamp("created_at"),
			UpdatedAt:       r.timestamp("updated_at"),
		})
	})
	if err != nil {
		return core.Dataset{}, err
	}

	if rows, ok := raw[SheetSettings]; ok {
		d.Settings = map[string]string{}
		err = eachRow(SheetSettings, rows, settingHeader, func(r *row) {
			d.Settings[r.str("key")] = r.str("value")
		})
		if err != nil {
			return core.Dataset{}, err
		}
	}
	return d, nil
}

// stringRows renders a table, header first.
func stringRows(t Table) [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header)
	for _, cells := range t.Rows {
		line := make([]string, len(cells))
		for i, c := range cells {
			line[i] = FormatCell(c)
		}
		out = append(out, line)
	}
	return out
}
