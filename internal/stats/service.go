package stats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/core"
)

// Source is the read side of the ledger the reports are built from.
type Source interface {
	ListTransactions(ctx context.Context, from, to time.Time) ([]core.Transaction, error)
	ListCategories(ctx context.Context, typ core.CategoryType, includeArchived bool) ([]core.Category, error)
	SumByType(ctx context.Context, typ core.TransactionType, from, to time.Time) (core.Money, error)
	CountTransactions(ctx context.Context, from, to time.Time) (int, error)
	TopCategories(ctx context.Context, typ core.TransactionType, from, to time.Time, n int) ([]core.CategorySum, error)
	Location() *time.Location
}

// CacheObserver is told about every report cache lookup.
type CacheObserver interface {
	ObserveCache(report string, hit bool)
}

// RangeSummary aggregates an arbitrary date range in SQL.
type RangeSummary struct {
	From          time.Time          `json:"from"`
	To            time.Time          `json:"to"`
	TotalIncome   core.Money         `json:"total_income"`
	TotalExpense  core.Money         `json:"total_expense"`
	Count         int                `json:"count"`
	TopCategories []core.CategorySum `json:"top_categories"`
}

// Service serves cached reports. Concurrent misses for the same key share
// one load; writes drop the affected month through InvalidateMonth.
type Service struct {
	source   Source
	monthly  *cache.LRU[MonthlyReport]
	yearly   *cache.LRU[YearlyReport]
	group    singleflight.Group
	gen      atomic.Uint64
	observer CacheObserver
	now      func() time.Time
}

func NewService(source Source, opts cache.Options, observer CacheObserver) *Service {
	return &Service{
		source:   source,
		monthly:  cache.NewLRU[MonthlyReport](opts),
		yearly:   cache.NewLRU[YearlyReport](opts),
		observer: observer,
		now:      time.Now,
	}
}

// Caches returns the underlying caches for expiry cleanup.
func (s *Service) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.monthly, s.yearly}
}

func monthlyPrefix(ym core.YearMonth) string {
	return "monthly:" + ym.String() + ":"
}

func yearlyKey(year int) string {
	return "yearly:" + strconv.Itoa(year)
}

func (s *Service) observe(report string, hit bool) {
	if s.observer != nil {
		s.observer.ObserveCache(report, hit)
	}
}

// Monthly returns the report of ym for tab (expense or income).
func (s *Service) Monthly(ctx context.Context, ym core.YearMonth, tab core.TransactionType) (MonthlyReport, error) {
	if err := ym.Validate(); err != nil {
		return MonthlyReport{}, err
	}
	if !ValidTab(tab) {
		return MonthlyReport{}, core.ValidationError("monthly statistics", "tab must be expense or income")
	}
	key := monthlyPrefix(ym) + string(tab)
	if r, ok := s.monthly.Get(key); ok {
		s.observe("monthly", true)
		return r, nil
	}
	s.observe("monthly", false)

	v, err, _ := s.group.Do(key, func() (any, error) {
		gen := s.gen.Load()
		loc := s.source.Location()
		txs, err := s.source.ListTransactions(ctx, ym.Start(loc), ym.End(loc))
		if err != nil {
			return nil, fmt.Errorf("list month transactions: %w", err)
		}
		names, err := s.categoryNames(ctx)
		if err != nil {
			return nil, err
		}
		r := Monthly(txs, ym, tab, names, loc)
		if s.gen.Load() == gen {
			s.monthly.Set(key, r)
		}
		slog.DebugContext(ctx, "Monthly report computed", "year_month", ym.String(), "tab", tab, "transactions", len(txs))
		return r, nil
	})
	if err != nil {
		return MonthlyReport{}, err
	}
	return v.(MonthlyReport), nil
}

// Yearly returns the month-by-month rollup of year.
func (s *Service) Yearly(ctx context.Context, year int) (YearlyReport, error) {
	if err := (core.YearMonth{Year: year, Month: time.January}).Validate(); err != nil {
		return YearlyReport{}, err
	}
	key := yearlyKey(year)
	if r, ok := s.yearly.Get(key); ok {
		s.observe("yearly", true)
		return r, nil
	}
	s.observe("yearly", false)

	v, err, _ := s.group.Do(key, func() (any, error) {
		gen := s.gen.Load()
		loc := s.source.Location()
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
		txs, err := s.source.ListTransactions(ctx, from, from.AddDate(1, 0, 0))
		if err != nil {
			return nil, fmt.Errorf("list year transactions: %w", err)
		}
		r := Yearly(txs, year, s.now(), loc)
		if s.gen.Load() == gen {
			s.yearly.Set(key, r)
		}
		return r, nil
	})
	if err != nil {
		return YearlyReport{}, err
	}
	return v.(YearlyReport), nil
}

// TopCategories returns the n largest categories of ym for tab.
func (s *Service) TopCategories(ctx context.Context, ym core.YearMonth, tab core.TransactionType, n int) ([]CategoryStat, error) {
	if n <= 0 {
		return nil, core.ValidationError("top categories", "limit must be positive")
	}
	r, err := s.Monthly(ctx, ym, tab)
	if err != nil {
		return nil, err
	}
	return TopCategories(r.Categories, n), nil
}

// Summary aggregates [from, to) directly in SQL, uncached.
func (s *Service) Summary(ctx context.Context, from, to time.Time, top int) (RangeSummary, error) {
	const op = "range summary"
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return RangeSummary{}, core.ValidationError(op, "a non-empty date range is required")
	}
	if top <= 0 {
		top = 5
	}
	sum := RangeSummary{From: from, To: to}
	var err error
	if sum.TotalIncome, err = s.source.SumByType(ctx, core.Income, from, to); err != nil {
		return RangeSummary{}, fmt.Errorf("sum income: %w", err)
	}
	if sum.TotalExpense, err = s.source.SumByType(ctx, core.Expense, from, to); err != nil {
		return RangeSummary{}, fmt.Errorf("sum expense: %w", err)
	}
	if sum.Count, err = s.source.CountTransactions(ctx, from, to); err != nil {
		return RangeSummary{}, fmt.Errorf("count transactions: %w", err)
	}
	if sum.TopCategories, err = s.source.TopCategories(ctx, core.Expense, from, to, top); err != nil {
		return RangeSummary{}, fmt.Errorf("top categories: %w", err)
	}
	return sum, nil
}

func (s *Service) categoryNames(ctx context.Context) (map[int64]string, error) {
	cats, err := s.source.ListCategories(ctx, "", true)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return core.Dataset{Categories: cats}.CategoryNames(), nil
}

// InvalidateMonth drops the reports that include ym.
func (s *Service) InvalidateMonth(ym core.YearMonth) {
	s.gen.Add(1)
	s.monthly.DeletePrefix(monthlyPrefix(ym))
	s.yearly.Delete(yearlyKey(ym.Year))
}

// Clear drops every cached report.
func (s *Service) Clear() {
	s.gen.Add(1)
	s.monthly.Clear()
	s.yearly.Clear()
}
