package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// BudgetService implements the budget use cases.
type BudgetService struct {
	store     BudgetStore
	publisher EventPublisher
	now       func() time.Time
}

func NewBudgetService(store BudgetStore, publisher EventPublisher) *BudgetService {
	return &BudgetService{store: store, publisher: publisher, now: time.Now}
}

// AddBudget validates and persists a new budget. Checks run in order and
// stop at the first failure; nothing is written before the final insert.
func (s *BudgetService) AddBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	const op = "add budget"
	if b.Amount.Cents <= 0 {
		return core.Budget{}, core.ValidationError(op, "budget amount must be greater than zero")
	}
	if b.NotifyThreshold != nil {
		if th := *b.NotifyThreshold; th <= 0 || th > 1 {
			return core.Budget{}, core.ValidationError(op, "notify threshold must be in (0, 1]")
		}
	}
	if err := b.Period.Validate(); err != nil {
		return core.Budget{}, err
	}
	b.Note = strings.TrimSpace(b.Note)

	if b.CategoryID != nil {
		if err := s.checkExpenseCategory(ctx, op, *b.CategoryID); err != nil {
			return core.Budget{}, err
		}
		if _, exists, err := s.store.FindBudget(ctx, b.CategoryID, b.Period); err != nil {
			return core.Budget{}, fmt.Errorf("find budget: %w", err)
		} else if exists {
			return core.Budget{}, core.ConflictError(op, "a budget for this category already exists in %s", b.Period)
		}
	} else {
		if _, exists, err := s.store.FindBudget(ctx, nil, b.Period); err != nil {
			return core.Budget{}, fmt.Errorf("find budget: %w", err)
		} else if exists {
			return core.Budget{}, core.ConflictError(op, "an overall budget already exists in %s", b.Period)
		}
	}

	created, err := s.store.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	s.publish(ctx, amqp.EventBudgetChanged, created.Period)
	return created, nil
}

func (s *BudgetService) checkExpenseCategory(ctx context.Context, op string, id int64) error {
	cat, err := s.store.GetCategory(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.ValidationError(op, "category %d does not exist", id)
	}
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	if cat.Type != core.ExpenseCategory {
		return core.ValidationError(op, "budgets only apply to expense categories")
	}
	return nil
}

// UpdateBudget applies the same field rules as AddBudget and rejects moving
// a budget onto a (category, month) slot owned by another budget.
func (s *BudgetService) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	const op = "update budget"
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	current, err := s.store.GetBudget(ctx, b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	if b.CategoryID != nil {
		if err := s.checkExpenseCategory(ctx, op, *b.CategoryID); err != nil {
			return core.Budget{}, err
		}
	}
	if b.CategoryKey() != current.CategoryKey() || b.Period != current.Period {
		other, exists, err := s.store.FindBudget(ctx, b.CategoryID, b.Period)
		if err != nil {
			return core.Budget{}, fmt.Errorf("find budget: %w", err)
		}
		if exists && other.ID != b.ID {
			return core.Budget{}, core.ConflictError(op, "a budget for this category already exists in %s", b.Period)
		}
	}
	updated, err := s.store.UpdateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	s.publish(ctx, amqp.EventBudgetChanged, updated.Period)
	return updated, nil
}

func (s *BudgetService) DeleteBudget(ctx context.Context, id int64) error {
	b, err := s.store.GetBudget(ctx, id)
	if err != nil {
		return fmt.Errorf("get budget: %w", err)
	}
	if err := s.store.DeleteBudget(ctx, id); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	s.publish(ctx, amqp.EventBudgetChanged, b.Period)
	return nil
}

func (s *BudgetService) GetBudget(ctx context.Context, id int64) (core.Budget, error) {
	return s.store.GetBudget(ctx, id)
}

func (s *BudgetService) ListBudgets(ctx context.Context, ym core.YearMonth) ([]core.Budget, error) {
	if err := ym.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListBudgets(ctx, ym)
}

func (s *BudgetService) ListAlerts(ctx context.Context, ym core.YearMonth) ([]core.BudgetAlert, error) {
	if err := ym.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListBudgetAlerts(ctx, ym)
}

// CopyBudgets copies the enabled budgets of from into to, skipping slots
// already taken in the target month. It returns the number created.
func (s *BudgetService) CopyBudgets(ctx context.Context, from, to core.YearMonth) (int, error) {
	if from == to {
		return 0, core.ValidationError("copy budgets", "source and target month must differ")
	}
	src, err := s.ListBudgets(ctx, from)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, b := range src {
		if !b.Enabled {
			continue
		}
		b.ID = 0
		b.Period = to
		if _, err := s.AddBudget(ctx, b); err != nil {
			if errors.Is(err, core.ErrConflict) {
				slog.DebugContext(ctx, "Budget already present in target month", "category_id", b.CategoryKey(), "year_month", to.String())
				continue
			}
			return copied, err
		}
		copied++
	}
	slog.InfoContext(ctx, "Budgets copied", "from", from.String(), "to", to.String(), "count", copied)
	return copied, nil
}

// GetBudgetProgress returns one entry per enabled budget of ym. When category
// budgets exist and ym has no overall budget row, a synthetic overall entry
// capped at their sum is placed first. A disabled overall row suppresses it.
func (s *BudgetService) GetBudgetProgress(ctx context.Context, ym core.YearMonth) ([]core.BudgetProgress, error) {
	if err := ym.Validate(); err != nil {
		return nil, err
	}
	progress, err := s.store.BudgetProgress(ctx, ym)
	if err != nil {
		return nil, fmt.Errorf("budget progress: %w", err)
	}
	if len(progress) == 0 {
		return progress, nil
	}
	if overall, _ := SplitProgress(progress); overall != nil {
		return progress, nil
	}
	_, hasOverall, err := s.store.FindBudget(ctx, nil, ym)
	if err != nil {
		return nil, fmt.Errorf("find overall budget: %w", err)
	}
	if hasOverall {
		return progress, nil
	}

	var limit core.Money
	for _, p := range progress {
		limit = limit.Add(p.Amount)
	}
	loc := s.store.Location()
	spent, err := s.store.SumByType(ctx, core.Expense, ym.Start(loc), ym.End(loc))
	if err != nil {
		return nil, fmt.Errorf("sum month expenses: %w", err)
	}
	synthetic := core.BudgetProgress{
		CategoryID: core.OverallCategoryID,
		Amount:     limit,
		Spent:      spent,
		Remaining:  limit.Sub(spent),
		Progress:   spent.Percent(limit),
		Synthetic:  true,
	}
	return append([]core.BudgetProgress{synthetic}, progress...), nil
}

// SplitProgress partitions progress into the overall entry (nil if absent)
// and the per-category entries, preserving order.
func SplitProgress(progress []core.BudgetProgress) (*core.BudgetProgress, []core.BudgetProgress) {
	var (
		overall    *core.BudgetProgress
		categories []core.BudgetProgress
	)
	for i := range progress {
		if progress[i].CategoryID == core.OverallCategoryID {
			if overall == nil {
				overall = &progress[i]
			}
			continue
		}
		categories = append(categories, progress[i])
	}
	return overall, categories
}

func (s *BudgetService) publish(ctx context.Context, kind string, ym core.YearMonth) {
	if s.publisher == nil {
		return
	}
	ev := amqp.NewLedgerEvent(kind, 0, ym, s.now())
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		// The write already succeeded; alerts catch up on the next event.
		slog.ErrorContext(ctx, "Failed to publish ledger event", "kind", kind, "error", err)
	}
}
