// Package search filters transaction lists in memory.
//
// A Filter is a conjunction of optional predicates. A zero Filter matches
// everything, and applying several terms is the same as intersecting the
// results of applying each term alone.
package search

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

// Filter holds the optional search terms. Nil or empty fields are ignored.
type Filter struct {
	Query      string
	Type       core.TransactionType
	CategoryID *int64
	AccountID  *int64
	From       *time.Time // inclusive
	To         *time.Time // inclusive
	MinAmount  *core.Money
	MaxAmount  *core.Money
}

// Names resolves ids to display names for the query term.
type Names struct {
	Accounts   map[int64]string
	Categories map[int64]string
}

// IsEmpty reports whether the filter has no terms.
func (f Filter) IsEmpty() bool {
	return strings.TrimSpace(f.Query) == "" && f.Type == "" && f.CategoryID == nil && f.AccountID == nil &&
		f.From == nil && f.To == nil && f.MinAmount == nil && f.MaxAmount == nil
}

// Apply returns the transactions matching every term of f, in input order.
func Apply(txs []core.Transaction, f Filter, names Names) []core.Transaction {
	if f.IsEmpty() {
		out := make([]core.Transaction, len(txs))
		copy(out, txs)
		return out
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.matches(tx, query, names) {
			out = append(out, tx)
		}
	}
	return out
}

func (f Filter) matches(tx core.Transaction, query string, names Names) bool {
	if query != "" && !matchesQuery(tx, query, names) {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.CategoryID != nil && (tx.CategoryID == nil || *tx.CategoryID != *f.CategoryID) {
		return false
	}
	if f.AccountID != nil && tx.AccountID != *f.AccountID && (tx.ToAccountID == nil || *tx.ToAccountID != *f.AccountID) {
		return false
	}
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Date.After(*f.To) {
		return false
	}
	if f.MinAmount != nil && tx.Amount.Abs().Cents < f.MinAmount.Cents {
		return false
	}
	if f.MaxAmount != nil && tx.Amount.Abs().Cents > f.MaxAmount.Cents {
		return false
	}
	return true
}

func matchesQuery(tx core.Transaction, query string, names Names) bool {
	if strings.Contains(strings.ToLower(tx.Note), query) {
		return true
	}
	if tx.CategoryID != nil && strings.Contains(strings.ToLower(names.Categories[*tx.CategoryID]), query) {
		return true
	}
	if strings.Contains(strings.ToLower(names.Accounts[tx.AccountID]), query) {
		return true
	}
	return tx.ToAccountID != nil && strings.Contains(strings.ToLower(names.Accounts[*tx.ToAccountID]), query)
}

// ParseFilter reads a filter from query parameters: q, type, category_id,
// account_id, from, to (YYYY-MM-DD or RFC 3339), min_amount, max_amount.
// A date-only "to" covers the whole day.
func ParseFilter(v url.Values, loc *time.Location) (Filter, error) {
	const op = "parse filter"
	if loc == nil {
		loc = time.UTC
	}
	f := Filter{Query: strings.TrimSpace(v.Get("q"))}

	if s := v.Get("type"); s != "" {
		f.Type = core.TransactionType(strings.ToLower(s))
		if !f.Type.Valid() {
			return Filter{}, core.ValidationError(op, "unknown transaction type %q", s)
		}
	}
	var err error
	if f.CategoryID, err = parseID(v.Get("category_id")); err != nil {
		return Filter{}, core.ValidationError(op, "invalid category_id")
	}
	if f.AccountID, err = parseID(v.Get("account_id")); err != nil {
		return Filter{}, core.ValidationError(op, "invalid account_id")
	}
	if s := v.Get("from"); s != "" {
		t, _, err := parseTime(s, loc)
		if err != nil {
			return Filter{}, core.ValidationError(op, "invalid from date %q", s)
		}
		f.From = &t
	}
	if s := v.Get("to"); s != "" {
		t, dateOnly, err := parseTime(s, loc)
		if err != nil {
			return Filter{}, core.ValidationError(op, "invalid to date %q", s)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return Filter{}, core.ValidationError(op, "date range ends before it starts")
	}
	if f.MinAmount, err = parseAmount(v.Get("min_amount")); err != nil {
		return Filter{}, err
	}
	if f.MaxAmount, err = parseAmount(v.Get("max_amount")); err != nil {
		return Filter{}, err
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MaxAmount.Cents < f.MinAmount.Cents {
		return Filter{}, core.ValidationError(op, "amount range is empty")
	}
	return f, nil
}

func parseID(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, core.ValidationError("parse id", "invalid id %q", s)
	}
	return &id, nil
}

func parseTime(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}

func parseAmount(s string) (*core.Money, error) {
	if s == "" {
		return nil, nil
	}
	m, err := core.ParseMoney(s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
