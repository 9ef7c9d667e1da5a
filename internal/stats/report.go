// Package stats computes the monthly and yearly reports shown on the
// statistics screens.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

type (
	CategoryStat struct {
		CategoryID   int64      `json:"category_id"`
		CategoryName string     `json:"category_name"`
		Amount       core.Money `json:"amount"`
		Count        int        `json:"count"`
		Percentage   float64    `json:"percentage"`
	}

	DailyStat struct {
		Date    string     `json:"date"` // YYYY-MM-DD
		Income  core.Money `json:"income"`
		Expense core.Money `json:"expense"`
		Net     core.Money `json:"net"`
	}

	MonthlyReport struct {
		Period       string               `json:"period"`
		Tab          core.TransactionType `json:"tab"`
		TotalIncome  core.Money           `json:"total_income"`
		TotalExpense core.Money           `json:"total_expense"`
		Balance      core.Money           `json:"balance"`
		Categories   []CategoryStat       `json:"categories"`
		Daily        []DailyStat          `json:"daily"`
	}

	MonthStat struct {
		Month   int        `json:"month"`
		Income  core.Money `json:"income"`
		Expense core.Money `json:"expense"`
		Balance core.Money `json:"balance"`
	}

	YearlyReport struct {
		Year           int         `json:"year"`
		Months         []MonthStat `json:"months"`
		TotalIncome    core.Money  `json:"total_income"`
		TotalExpense   core.Money  `json:"total_expense"`
		Balance        core.Money  `json:"balance"`
		AverageIncome  core.Money  `json:"average_income"`
		AverageExpense core.Money  `json:"average_expense"`
		MonthsAveraged int         `json:"months_averaged"`
	}
)

// ValidTab reports whether tab selects a category breakdown.
func ValidTab(tab core.TransactionType) bool {
	return tab == core.Expense || tab == core.Income
}

// Monthly aggregates the transactions of ym. Transactions outside the month
// and transfers are ignored. Every calendar day appears in Daily, in order.
// Categories break down the tab's transactions, largest first.
func Monthly(txs []core.Transaction, ym core.YearMonth, tab core.TransactionType, categoryNames map[int64]string, loc *time.Location) MonthlyReport {
	start := ym.Start(loc)
	days := ym.Days()
	daily := make([]DailyStat, days)
	for i := range daily {
		daily[i].Date = start.AddDate(0, 0, i).Format(time.DateOnly)
	}

	r := MonthlyReport{Period: ym.String(), Tab: tab}
	byCategory := map[int64]*CategoryStat{}
	for _, tx := range txs {
		if !ym.Contains(tx.Date, loc) || tx.Type == core.Transfer {
			continue
		}
		d := &daily[tx.Date.In(loc).Day()-1]
		switch tx.Type {
		case core.Income:
			r.TotalIncome = r.TotalIncome.Add(tx.Amount)
			d.Income = d.Income.Add(tx.Amount)
			d.Net = d.Net.Add(tx.Amount)
		case core.Expense:
			r.TotalExpense = r.TotalExpense.Add(tx.Amount)
			d.Expense = d.Expense.Add(tx.Amount)
			d.Net = d.Net.Sub(tx.Amount)
		}
		if tx.Type != tab || tx.CategoryID == nil {
			continue
		}
		cs, ok := byCategory[*tx.CategoryID]
		if !ok {
			cs = &CategoryStat{CategoryID: *tx.CategoryID, CategoryName: categoryNames[*tx.CategoryID]}
			byCategory[*tx.CategoryID] = cs
		}
		cs.Amount = cs.Amount.Add(tx.Amount)
		cs.Count++
	}

	total := r.TotalExpense
	if tab == core.Income {
		total = r.TotalIncome
	}
	r.Categories = make([]CategoryStat, 0, len(byCategory))
	for _, cs := range byCategory {
		cs.Percentage = cs.Amount.Percent(total)
		r.Categories = append(r.Categories, *cs)
	}
	sortCategories(r.Categories)
	r.Balance = r.TotalIncome.Sub(r.TotalExpense)
	r.Daily = daily
	return r
}

func sortCategories(cs []CategoryStat) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Amount.Cents != cs[j].Amount.Cents {
			return cs[i].Amount.Cents > cs[j].Amount.Cents
		}
		return cs[i].CategoryID < cs[j].CategoryID
	})
}

// Yearly rolls the transactions of year up by month. Averages divide by 12
// for past years and by the elapsed months for the year containing now.
func Yearly(txs []core.Transaction, year int, now time.Time, loc *time.Location) YearlyReport {
	r := YearlyReport{Year: year, Months: make([]MonthStat, 12)}
	for i := range r.Months {
		r.Months[i].Month = i + 1
	}
	for _, tx := range txs {
		at := tx.Date.In(loc)
		if at.Year() != year {
			continue
		}
		m := &r.Months[at.Month()-1]
		switch tx.Type {
		case core.Income:
			m.Income = m.Income.Add(tx.Amount)
			r.TotalIncome = r.TotalIncome.Add(tx.Amount)
		case core.Expense:
			m.Expense = m.Expense.Add(tx.Amount)
			r.TotalExpense = r.TotalExpense.Add(tx.Amount)
		}
	}
	for i := range r.Months {
		r.Months[i].Balance = r.Months[i].Income.Sub(r.Months[i].Expense)
	}
	r.Balance = r.TotalIncome.Sub(r.TotalExpense)

	current := now.In(loc)
	switch {
	case year < current.Year():
		r.MonthsAveraged = 12
	case year == current.Year():
		r.MonthsAveraged = int(current.Month())
	}
	r.AverageIncome = average(r.TotalIncome, r.MonthsAveraged)
	r.AverageExpense = average(r.TotalExpense, r.MonthsAveraged)
	return r
}

func average(total core.Money, n int) core.Money {
	if n == 0 {
		return core.Money{}
	}
	avg, _ := core.MoneyFromDecimal(total.Decimal().Div(decimal.NewFromInt(int64(n))))
	return avg
}

// TopCategories returns the first n entries of an already sorted breakdown.
func TopCategories(cs []CategoryStat, n int) []CategoryStat {
	if n < 0 {
		n = 0
	}
	if n > len(cs) {
		n = len(cs)
	}
	return cs[:n]
}
