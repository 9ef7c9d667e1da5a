package search

import (
	"net/url"
	"testing"
	"time"

	"fintrack/internal/core"
)

func day(d int) time.Time {
	return time.Date(2025, time.May, d, 9, 30, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

var (
	names = Names{
		Accounts:   map[int64]string{1: "Wallet", 2: "Savings Bank"},
		Categories: map[int64]string{10: "Groceries", 11: "Salary"},
	}
	txs = []core.Transaction{
		{ID: 1, Type: core.Expense, Amount: core.Money{Cents: 1500}, CategoryID: ptr(int64(10)), AccountID: 1, Date: day(1), Note: "weekly shop"},
		{ID: 2, Type: core.Income, Amount: core.Money{Cents: 300000}, CategoryID: ptr(int64(11)), AccountID: 2, Date: day(5), Note: "May pay"},
		{ID: 3, Type: core.Transfer, Amount: core.Money{Cents: 5000}, AccountID: 2, ToAccountID: ptr(int64(1)), Date: day(10)},
		{ID: 4, Type: core.Expense, Amount: core.Money{Cents: 899}, CategoryID: ptr(int64(10)), AccountID: 1, Date: day(20), Note: "Bakery"},
		{ID: 5, Type: core.Expense, Amount: core.Money{Cents: 12000}, CategoryID: ptr(int64(10)), AccountID: 2, Date: day(31)},
	}
)

func ids(list []core.Transaction) map[int64]bool {
	out := map[int64]bool{}
	for _, tx := range list {
		out[tx.ID] = true
	}
	return out
}

func TestEmptyFilterReturnsEverything(t *testing.T) {
	got := Apply(txs, Filter{}, names)
	if len(got) != len(txs) {
		t.Fatalf("expected %d, got %d", len(txs), len(got))
	}
}

func TestSingleTerms(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"query matches note case-insensitively", Filter{Query: "BAKERY"}, []int64{4}},
		{"query matches category name", Filter{Query: "grocer"}, []int64{1, 4, 5}},
		{"query matches destination account", Filter{Query: "wallet"}, []int64{1, 3, 4}},
		{"type", Filter{Type: core.Income}, []int64{2}},
		{"category", Filter{CategoryID: ptr(int64(10))}, []int64{1, 4, 5}},
		{"account includes transfer destination", Filter{AccountID: ptr(int64(1))}, []int64{1, 3, 4}},
		{"inclusive date range", Filter{From: ptr(day(5)), To: ptr(day(20))}, []int64{2, 3, 4}},
		{"min amount inclusive", Filter{MinAmount: &core.Money{Cents: 5000}}, []int64{2, 3, 5}},
		{"max amount inclusive", Filter{MaxAmount: &core.Money{Cents: 1500}}, []int64{1, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Apply(txs, tt.filter, names))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Fatalf("missing %d in %v", id, got)
				}
			}
		})
	}
}

func TestCombinedFilterIsIntersection(t *testing.T) {
	terms := []Filter{
		{Query: "groceries"},
		{AccountID: ptr(int64(1))},
		{From: ptr(day(2))},
		{MaxAmount: &core.Money{Cents: 10000}},
	}
	combined := Filter{Query: "groceries", AccountID: ptr(int64(1)), From: ptr(day(2)), MaxAmount: &core.Money{Cents: 10000}}

	want := ids(txs)
	for _, term := range terms {
		single := ids(Apply(txs, term, names))
		for id := range want {
			if !single[id] {
				delete(want, id)
			}
		}
	}
	got := ids(Apply(txs, combined, names))
	if len(got) != len(want) {
		t.Fatalf("combined %v, intersection %v", got, want)
	}
	for id := range want {
		if !got[id] {
			t.Fatalf("combined result missing %d", id)
		}
	}
	if len(got) != 1 || !got[4] {
		t.Fatalf("expected only transaction 4, got %v", got)
	}
}

func TestParseFilter(t *testing.T) {
	v := url.Values{}
	v.Set("q", " shop ")
	v.Set("type", "EXPENSE")
	v.Set("category_id", "10")
	v.Set("from", "2025-05-01")
	v.Set("to", "2025-05-20")
	v.Set("min_amount", "8,99")
	f, err := ParseFilter(v, time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Query != "shop" || f.Type != core.Expense || *f.CategoryID != 10 || f.MinAmount.Cents != 899 {
		t.Fatalf("unexpected filter %+v", f)
	}
	// A date-only upper bound includes the whole day.
	if !f.To.After(day(20)) || f.To.Day() != 20 {
		t.Fatalf("to bound: %v", f.To)
	}

	bad := []url.Values{
		{"type": {"refund"}},
		{"category_id": {"abc"}},
		{"from": {"05/01/2025"}},
		{"from": {"2025-05-10"}, "to": {"2025-05-01"}},
		{"min_amount": {"10"}, "max_amount": {"5"}},
	}
	for i, v := range bad {
		if _, err := ParseFilter(v, time.UTC); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
