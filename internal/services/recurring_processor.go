package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
)

// TransactionCreator is the write path recurring templates go through, so
// materialized transactions update balances like manual ones.
type TransactionCreator interface {
	Create(ctx context.Context, t core.Transaction) (core.Transaction, error)
}

// RecurringProcessor manages recurring templates and materializes the due
// ones into transactions.
type RecurringProcessor struct {
	store   RecurringStore
	creator TransactionCreator
}

func NewRecurringProcessor(store RecurringStore, creator TransactionCreator) *RecurringProcessor {
	return &RecurringProcessor{store: store, creator: creator}
}

func (p *RecurringProcessor) Create(ctx context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	rt.ID = 0
	rt.LastExecution = time.Time{}
	if err := rt.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}
	return p.store.CreateRecurring(ctx, rt)
}

func (p *RecurringProcessor) List(ctx context.Context) ([]core.RecurringTransaction, error) {
	return p.store.ListRecurring(ctx, time.Time{})
}

func (p *RecurringProcessor) Delete(ctx context.Context, id int64) error {
	return p.store.DeleteRecurring(ctx, id)
}

// ProcessDue creates a transaction for every active template due at now. A
// failing template is logged and skipped. It returns how many were created.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.creator == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates, err := p.store.ListRecurring(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list active recurring transactions: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"total_active", len(templates),
		"processing_date", now.Format(time.DateOnly))

	processed := 0
	for _, rt := range templates {
		checker, err := GetDuenessChecker(rt.Every)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to check if template is due", "recurring_id", rt.ID, "error", err)
			continue
		}
		if !checker.IsDue(rt.LastExecution, now, rt.StartDate) {
			continue
		}

		tx, err := p.creator.Create(ctx, rt.Template(now))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create transaction from recurring template",
				"recurring_id", rt.ID,
				"note", rt.Note,
				"error", err)
			continue
		}

		if err := p.store.UpdateRecurringLastExecution(ctx, rt.ID, now); err != nil {
			// The transaction exists; the next run would duplicate it.
			slog.ErrorContext(ctx, "Failed to update last execution date",
				"recurring_id", rt.ID,
				"transaction_id", tx.ID,
				"error", err)
		}

		processed++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"recurring_id", rt.ID,
			"transaction_id", tx.ID,
			"amount_cents", rt.Amount.Cents,
			"frequency", rt.Every)
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"processed", processed,
		"total_checked", len(templates))
	return processed, nil
}
