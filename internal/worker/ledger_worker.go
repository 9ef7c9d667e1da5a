package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/debounce"
	"fintrack/internal/sheets"
)

type (
	// ProgressSource computes budget progress for a month.
	ProgressSource interface {
		GetBudgetProgress(ctx context.Context, ym core.YearMonth) ([]core.BudgetProgress, error)
	}

	// Store records alerts and exports the dataset for the workbook sync.
	Store interface {
		RecordBudgetAlert(ctx context.Context, a core.BudgetAlert) (bool, error)
		ExportDataset(ctx context.Context) (core.Dataset, error)
	}

	AlertToggle interface {
		BudgetAlertsEnabled(ctx context.Context) (bool, error)
	}

	Observer interface {
		BudgetAlertFired()
		ObserveEvent(err error)
	}
)

const workbookKey = "workbook"

// LedgerWorker reacts to ledger events. Bursts of events for the same month
// collapse into one budget evaluation; workbook rewrites collapse globally.
type LedgerWorker struct {
	progress ProgressSource
	store    Store
	toggle   AlertToggle
	workbook sheets.WorkbookWriter
	observer Observer
	debounce *debounce.Group
	now      func() time.Time

	mu     sync.Mutex
	failed map[core.YearMonth]struct{} // months whose evaluation must be retried
}

// NewLedgerWorker wires the worker. workbook, toggle and observer may be nil.
func NewLedgerWorker(progress ProgressSource, store Store, toggle AlertToggle, workbook sheets.WorkbookWriter, observer Observer, delay time.Duration) *LedgerWorker {
	return &LedgerWorker{
		progress: progress,
		store:    store,
		toggle:   toggle,
		workbook: workbook,
		observer: observer,
		debounce: debounce.New(delay),
		now:      time.Now,
		failed:   map[core.YearMonth]struct{}{},
	}
}

// HandleEvent schedules the work an event implies and returns immediately,
// so the delivery is acked before that work runs. Only a malformed event is
// returned as an error. A month whose scheduled evaluation fails is kept and
// retried by CatchUp.
func (w *LedgerWorker) HandleEvent(ctx context.Context, ev amqp.LedgerEvent) error {
	ym := ev.Period()
	if err := ym.Validate(); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Scheduling ledger event", "kind", ev.Kind, "year_month", ym.String())

	w.debounce.Trigger("budgets:"+ym.String(), func(ctx context.Context) {
		_, err := w.EvaluateBudgets(ctx, ym)
		if err != nil && ctx.Err() == nil {
			w.markFailed(ym)
		}
		w.done(ctx, "evaluate budgets", err)
	})
	if w.workbook != nil {
		w.debounce.Trigger(workbookKey, func(ctx context.Context) {
			w.done(ctx, "sync workbook", w.SyncWorkbook(ctx))
		})
	}
	return nil
}

func (w *LedgerWorker) done(ctx context.Context, what string, err error) {
	if w.observer != nil {
		w.observer.ObserveEvent(err)
	}
	if err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Ledger event processing failed", "step", what, "error", err)
	}
}

// EvaluateBudgets records an alert for every budget of ym whose progress
// reached its notify threshold and that has not alerted yet this month. It
// returns the number of new alerts.
func (w *LedgerWorker) EvaluateBudgets(ctx context.Context, ym core.YearMonth) (int, error) {
	if w.toggle != nil {
		enabled, err := w.toggle.BudgetAlertsEnabled(ctx)
		if err != nil {
			return 0, fmt.Errorf("read alert setting: %w", err)
		}
		if !enabled {
			return 0, nil
		}
	}

	progress, err := w.progress.GetBudgetProgress(ctx, ym)
	if err != nil {
		return 0, fmt.Errorf("budget progress: %w", err)
	}

	fired := 0
	for _, p := range progress {
		if p.Synthetic || p.BudgetID == 0 || !p.ThresholdReached() {
			continue
		}
		isNew, err := w.store.RecordBudgetAlert(ctx, core.BudgetAlert{
			BudgetID:  p.BudgetID,
			Period:    ym,
			Threshold: *p.NotifyThreshold,
			Progress:  p.Progress,
			FiredAt:   w.now(),
		})
		if err != nil {
			return fired, fmt.Errorf("record alert for budget %d: %w", p.BudgetID, err)
		}
		if !isNew {
			continue
		}
		fired++
		if w.observer != nil {
			w.observer.BudgetAlertFired()
		}
		slog.WarnContext(ctx, "Budget threshold reached",
			"budget_id", p.BudgetID,
			"category", p.CategoryName,
			"year_month", ym.String(),
			"progress", p.Progress,
			"threshold", *p.NotifyThreshold*100,
			"spent", p.Spent.String(),
			"amount", p.Amount.String())
	}
	return fired, nil
}

// SyncWorkbook rewrites every workbook tab from the current dataset.
func (w *LedgerWorker) SyncWorkbook(ctx context.Context) error {
	if w.workbook == nil {
		return nil
	}
	d, err := w.store.ExportDataset(ctx)
	if err != nil {
		return fmt.Errorf("export dataset: %w", err)
	}
	if err := sheets.Sync(ctx, w.workbook, d); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Workbook synced",
		"accounts", len(d.Accounts),
		"transactions", len(d.Transactions),
		"budgets", len(d.Budgets))
	return nil
}

// StartupCheck evaluates the current month and syncs the workbook, catching
// up on events missed while the worker was down.
func (w *LedgerWorker) StartupCheck(ctx context.Context, loc *time.Location) error {
	ym := core.YearMonthOf(w.now().In(loc))
	n, err := w.EvaluateBudgets(ctx, ym)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Startup budget check completed", "year_month", ym.String(), "alerts", n)
	return w.SyncWorkbook(ctx)
}

// CatchUp evaluates the current month and every month whose scheduled
// evaluation failed. Months that fail again stay pending.
func (w *LedgerWorker) CatchUp(ctx context.Context, loc *time.Location) error {
	months := w.takeFailed()
	current := core.YearMonthOf(w.now().In(loc))
	if !containsMonth(months, current) {
		months = append(months, current)
	}

	var firstErr error
	for _, ym := range months {
		if _, err := w.EvaluateBudgets(ctx, ym); err != nil {
			w.markFailed(ym)
			if firstErr == nil {
				firstErr = fmt.Errorf("evaluate %s: %w", ym, err)
			}
		}
	}
	return firstErr
}

// PendingMonths lists the months waiting for a retried evaluation, oldest first.
func (w *LedgerWorker) PendingMonths() []core.YearMonth {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedMonths(w.failed)
}

func (w *LedgerWorker) markFailed(ym core.YearMonth) {
	w.mu.Lock()
	w.failed[ym] = struct{}{}
	w.mu.Unlock()
}

func (w *LedgerWorker) takeFailed() []core.YearMonth {
	w.mu.Lock()
	defer w.mu.Unlock()
	months := sortedMonths(w.failed)
	w.failed = map[core.YearMonth]struct{}{}
	return months
}

func sortedMonths(set map[core.YearMonth]struct{}) []core.YearMonth {
	out := make([]core.YearMonth, 0, len(set))
	for ym := range set {
		out = append(out, ym)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

func containsMonth(months []core.YearMonth, ym core.YearMonth) bool {
	for _, m := range months {
		if m == ym {
			return true
		}
	}
	return false
}

// Stop cancels scheduled work and waits for running work to return.
func (w *LedgerWorker) Stop() {
	w.debounce.Stop()
}
