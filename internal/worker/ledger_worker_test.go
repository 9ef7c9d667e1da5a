package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/sheets/memory"
)

type fakeProgress struct {
	mu    sync.Mutex
	calls int
	out   []core.BudgetProgress
	err   error
}

func (f *fakeProgress) GetBudgetProgress(context.Context, core.YearMonth) ([]core.BudgetProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.out, f.err
}

func (f *fakeProgress) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu     sync.Mutex
	alerts map[int64]core.BudgetAlert
	data   core.Dataset
}

func (f *fakeStore) RecordBudgetAlert(_ context.Context, a core.BudgetAlert) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alerts == nil {
		f.alerts = map[int64]core.BudgetAlert{}
	}
	if _, ok := f.alerts[a.BudgetID]; ok {
		return false, nil
	}
	f.alerts[a.BudgetID] = a
	return true, nil
}

func (f *fakeStore) ExportDataset(context.Context) (core.Dataset, error) { return f.data, nil }

type toggle bool

func (t toggle) BudgetAlertsEnabled(context.Context) (bool, error) { return bool(t), nil }

type countingObserver struct {
	mu     sync.Mutex
	alerts int
	events int
	errors int
}

func (o *countingObserver) BudgetAlertFired() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.alerts++
}

func (o *countingObserver) ObserveEvent(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events++
	if err != nil {
		o.errors++
	}
}

var april = core.YearMonth{Year: 2025, Month: time.April}

func sampleProgress() []core.BudgetProgress {
	return []core.BudgetProgress{
		// synthetic overall entries never alert
		{CategoryID: core.OverallCategoryID, Progress: 150, Synthetic: true},
		{BudgetID: 1, CategoryID: 10, CategoryName: "Food", Amount: core.MustMoney("100"), Spent: core.MustMoney("85"),
			Progress: 85, NotifyThreshold: core.Float64Ptr(0.8)},
		{BudgetID: 2, CategoryID: 11, CategoryName: "Fun", Amount: core.MustMoney("100"), Spent: core.MustMoney("50"),
			Progress: 50, NotifyThreshold: core.Float64Ptr(0.8)},
		{BudgetID: 3, CategoryID: 12, CategoryName: "Rent", Amount: core.MustMoney("100"), Spent: core.MustMoney("120"),
			Progress: 120},
	}
}

func TestEvaluateBudgetsFiresOncePerMonth(t *testing.T) {
	store := &fakeStore{}
	obs := &countingObserver{}
	w := NewLedgerWorker(&fakeProgress{out: sampleProgress()}, store, toggle(true), nil, obs, time.Millisecond)
	defer w.Stop()
	w.now = func() time.Time { return time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC) }

	n, err := w.EvaluateBudgets(context.Background(), april)
	if err != nil || n != 1 {
		t.Fatalf("first evaluation: n=%d err=%v", n, err)
	}
	a := store.alerts[1]
	if a.Threshold != 0.8 || a.Progress != 85 || a.Period != april {
		t.Fatalf("unexpected alert %+v", a)
	}

	n, err = w.EvaluateBudgets(context.Background(), april)
	if err != nil || n != 0 {
		t.Fatalf("second evaluation: n=%d err=%v", n, err)
	}
	if obs.alerts != 1 {
		t.Fatalf("observer saw %d alerts", obs.alerts)
	}
}

func TestEvaluateBudgetsHonoursSetting(t *testing.T) {
	progress := &fakeProgress{out: sampleProgress()}
	w := NewLedgerWorker(progress, &fakeStore{}, toggle(false), nil, nil, time.Millisecond)
	defer w.Stop()

	n, err := w.EvaluateBudgets(context.Background(), april)
	if err != nil || n != 0 || progress.Calls() != 0 {
		t.Fatalf("disabled alerts still evaluated: n=%d err=%v calls=%d", n, err, progress.Calls())
	}
}

func TestEvaluateBudgetsPropagatesErrors(t *testing.T) {
	w := NewLedgerWorker(&fakeProgress{err: errors.New("db down")}, &fakeStore{}, nil, nil, nil, time.Millisecond)
	defer w.Stop()
	if _, err := w.EvaluateBudgets(context.Background(), april); err == nil {
		t.Fatal("expected error")
	}
}

func TestHandleEventDebouncesAndSyncsWorkbook(t *testing.T) {
	progress := &fakeProgress{out: sampleProgress()}
	store := &fakeStore{data: core.Dataset{
		Accounts: []core.Account{{ID: 1, Name: "Wallet", Type: core.AccountCash, Currency: "EUR"}},
	}}
	book := memory.New()
	obs := &countingObserver{}
	w := NewLedgerWorker(progress, store, nil, book, obs, 20*time.Millisecond)
	defer w.Stop()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ev := amqp.NewLedgerEvent(amqp.EventTransactionCreated, int64(i+1), april, time.Now())
		if err := w.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		obs.mu.Lock()
		events := obs.events
		obs.mu.Unlock()
		if events >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(40 * time.Millisecond)

	if progress.Calls() != 1 {
		t.Fatalf("budget evaluations = %d, want 1", progress.Calls())
	}
	if book.Writes() == 0 {
		t.Fatal("workbook was not synced")
	}
	if _, ok := book.Sheet("ACCOUNTS"); !ok {
		t.Fatal("accounts tab missing")
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.events != 2 || obs.errors != 0 {
		t.Fatalf("events=%d errors=%d", obs.events, obs.errors)
	}
}

func TestHandleEventRejectsInvalidPeriod(t *testing.T) {
	w := NewLedgerWorker(&fakeProgress{}, &fakeStore{}, nil, nil, nil, time.Millisecond)
	defer w.Stop()
	if err := w.HandleEvent(context.Background(), amqp.LedgerEvent{Kind: "x", Year: 2025, Month: 13}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestStartupCheck(t *testing.T) {
	store := &fakeStore{}
	book := memory.New()
	w := NewLedgerWorker(&fakeProgress{out: sampleProgress()}, store, nil, book, nil, time.Millisecond)
	defer w.Stop()

	if err := w.StartupCheck(context.Background(), time.UTC); err != nil {
		t.Fatalf("StartupCheck: %v", err)
	}
	if len(store.alerts) != 1 || book.Writes() == 0 {
		t.Fatalf("alerts=%d writes=%d", len(store.alerts), book.Writes())
	}
}

func TestCatchUpRetriesFailedMonths(t *testing.T) {
	progress := &fakeProgress{out: sampleProgress(), err: errors.New("database is locked")}
	store := &fakeStore{}
	obs := &countingObserver{}
	w := NewLedgerWorker(progress, store, nil, nil, obs, time.Millisecond)
	defer w.Stop()
	w.now = func() time.Time { return time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC) }

	february := core.YearMonth{Year: 2025, Month: time.February}
	ctx := context.Background()
	if err := w.HandleEvent(ctx, amqp.NewLedgerEvent(amqp.EventTransactionUpdated, 9, february, time.Now())); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(w.PendingMonths()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := w.PendingMonths(); len(got) != 1 || got[0] != february {
		t.Fatalf("pending = %v, want [%s]", got, february)
	}

	// Still failing: both months stay pending.
	if err := w.CatchUp(ctx, time.UTC); err == nil {
		t.Fatal("expected catch-up error")
	}
	if got := w.PendingMonths(); len(got) != 2 || got[0] != february || got[1] != april {
		t.Fatalf("pending = %v, want [%s %s]", got, february, april)
	}

	progress.mu.Lock()
	progress.err = nil
	progress.mu.Unlock()
	before := progress.Calls()
	if err := w.CatchUp(ctx, time.UTC); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	if got := progress.Calls() - before; got != 2 {
		t.Fatalf("evaluations = %d, want 2", got)
	}
	if got := w.PendingMonths(); len(got) != 0 {
		t.Fatalf("pending after recovery = %v", got)
	}
	if len(store.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(store.alerts))
	}
}
