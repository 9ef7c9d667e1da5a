package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
)

func TestProcessDueMaterializesTemplates(t *testing.T) {
	f := newLedgerFixture()
	proc := NewRecurringProcessor(f.store, f.svc)
	ctx := context.Background()
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	rent, err := proc.Create(ctx, core.RecurringTransaction{
		Amount: core.MustMoney("700"), Type: core.Expense, AccountID: f.bank.ID,
		CategoryID: core.Int64Ptr(f.food.ID), Note: "rent", Every: core.Monthly, StartDate: start,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if _, err := proc.Create(ctx, core.RecurringTransaction{
		Amount: core.MustMoney("50"), Type: core.Transfer, AccountID: f.bank.ID,
		ToAccountID: core.Int64Ptr(f.wallet.ID), Every: core.Weekly, StartDate: start.AddDate(0, 6, 0),
	}); err != nil {
		t.Fatalf("create future template: %v", err)
	}

	now := time.Date(2025, 2, 15, 8, 0, 0, 0, time.UTC)
	n, err := proc.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed %d, want 1", n)
	}
	if got := f.balance(t, f.bank.ID); got != -70000 {
		t.Fatalf("bank = %d, want -70000", got)
	}

	again, err := proc.ProcessDue(ctx, now.Add(time.Hour))
	if err != nil || again != 0 {
		t.Fatalf("second run processed %d (%v), want 0", again, err)
	}

	stored, err := f.store.GetRecurring(ctx, rent.ID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if !stored.LastExecution.Equal(now) {
		t.Fatalf("last execution = %v, want %v", stored.LastExecution, now)
	}
}

func TestProcessDueSkipsFailingTemplate(t *testing.T) {
	f := newLedgerFixture()
	proc := NewRecurringProcessor(f.store, f.svc)
	ctx := context.Background()
	if _, err := proc.Create(ctx, core.RecurringTransaction{
		Amount: core.MustMoney("10"), Type: core.Expense, AccountID: f.wallet.ID,
		CategoryID: core.Int64Ptr(f.food.ID), Every: core.Daily, StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("create template: %v", err)
	}
	f.store.failCreateTx = errors.New("disk full")

	n, err := proc.ProcessDue(ctx, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil || n != 0 {
		t.Fatalf("ProcessDue = %d, %v", n, err)
	}
	templates, _ := proc.List(ctx)
	if len(templates) != 1 || !templates[0].LastExecution.IsZero() {
		t.Fatalf("failed template must stay pending: %+v", templates)
	}
}

func TestCreateRecurringValidates(t *testing.T) {
	proc := NewRecurringProcessor(newMemStore(), nil)
	_, err := proc.Create(context.Background(), core.RecurringTransaction{
		Amount: core.MustMoney("10"), Type: core.Income, AccountID: 1,
		CategoryID: core.Int64Ptr(2), Every: "hourly", StartDate: time.Now(),
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
