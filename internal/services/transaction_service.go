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
	"fintrack/internal/search"
)

// TransactionService orchestrates transaction writes: validation, the
// SQLite write (which carries the balance update), stats cache invalidation
// and the ledger event.
type TransactionService struct {
	store       LedgerStore
	publisher   EventPublisher
	invalidator StatsInvalidator
	now         func() time.Time
}

func NewTransactionService(store LedgerStore, publisher EventPublisher, invalidator StatsInvalidator) *TransactionService {
	return &TransactionService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		now:         time.Now,
	}
}

func normalize(t core.Transaction) core.Transaction {
	t.Note = strings.TrimSpace(t.Note)
	t.Location = strings.TrimSpace(t.Location)
	t.Tags = core.NormalizeTags(t.Tags)
	return t
}

// checkReferences verifies the referenced accounts and category exist and
// that the category kind matches the transaction type.
func (s *TransactionService) checkReferences(ctx context.Context, op string, t core.Transaction) error {
	if _, err := s.store.GetAccount(ctx, t.AccountID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.NotFoundError(op, "account %d does not exist", t.AccountID)
		}
		return fmt.Errorf("get account: %w", err)
	}
	if t.ToAccountID != nil {
		if _, err := s.store.GetAccount(ctx, *t.ToAccountID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.NotFoundError(op, "account %d does not exist", *t.ToAccountID)
			}
			return fmt.Errorf("get account: %w", err)
		}
	}
	if t.CategoryID == nil {
		return nil
	}
	cat, err := s.store.GetCategory(ctx, *t.CategoryID)
	if errors.Is(err, core.ErrNotFound) {
		return core.NotFoundError(op, "category %d does not exist", *t.CategoryID)
	}
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	if want, ok := core.CategoryTypeFor(t.Type); ok && cat.Type != want {
		return core.ValidationError(op, "category %q is not an %s category", cat.Name, want)
	}
	return nil
}

// Create records a new transaction and updates the affected balances.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	const op = "create transaction"
	t = normalize(t)
	t.ID = 0
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkReferences(ctx, op, t); err != nil {
		return core.Transaction{}, err
	}
	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.afterWrite(ctx, amqp.EventTransactionCreated, created.ID, created)
	return created, nil
}

// Update replaces a transaction. Balances move from the old values to the
// new ones atomically, also when the account or type changes.
func (s *TransactionService) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	const op = "update transaction"
	if t.ID <= 0 {
		return core.Transaction{}, core.ValidationError(op, "transaction id is required")
	}
	t = normalize(t)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkReferences(ctx, op, t); err != nil {
		return core.Transaction{}, err
	}
	prev, err := s.store.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.afterWrite(ctx, amqp.EventTransactionUpdated, t.ID, prev, t)
	return s.store.GetTransaction(ctx, t.ID)
}

// Delete removes a transaction, reverting its balance effect, and returns it
// so callers can release its attachments.
func (s *TransactionService) Delete(ctx context.Context, id int64) (core.Transaction, error) {
	prev, err := s.store.DeleteTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	s.afterWrite(ctx, amqp.EventTransactionDeleted, id, prev)
	return prev, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// ListMonth returns the transactions of ym, newest first.
func (s *TransactionService) ListMonth(ctx context.Context, ym core.YearMonth) ([]core.Transaction, error) {
	if err := ym.Validate(); err != nil {
		return nil, err
	}
	loc := s.store.Location()
	return s.store.ListTransactions(ctx, ym.Start(loc), ym.End(loc))
}

// Search narrows the candidate set in SQL by date and applies every filter
// term in memory.
func (s *TransactionService) Search(ctx context.Context, f search.Filter) ([]core.Transaction, error) {
	var from, to time.Time
	if f.From != nil {
		from = *f.From
	}
	if f.To != nil {
		// Dates are stored in whole milliseconds and the store bound is exclusive.
		to = f.To.Truncate(time.Millisecond).Add(time.Millisecond)
	}
	candidates, err := s.store.ListTransactions(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	return search.Apply(candidates, f, names), nil
}

// Names indexes account and category names, archived ones included.
func (s *TransactionService) Names(ctx context.Context) (search.Names, error) {
	accounts, err := s.store.ListAccounts(ctx, true)
	if err != nil {
		return search.Names{}, fmt.Errorf("list accounts: %w", err)
	}
	categories, err := s.store.ListCategories(ctx, "", true)
	if err != nil {
		return search.Names{}, fmt.Errorf("list categories: %w", err)
	}
	d := core.Dataset{Accounts: accounts, Categories: categories}
	return search.Names{Accounts: d.AccountNames(), Categories: d.CategoryNames()}, nil
}

func (s *TransactionService) afterWrite(ctx context.Context, kind string, id int64, touched ...core.Transaction) {
	months := core.Months(touched...)
	if s.invalidator != nil {
		for _, ym := range months {
			s.invalidator.InvalidateMonth(ym)
		}
	}
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping ledger event", "kind", kind)
		return
	}
	for _, ym := range months {
		if err := s.publisher.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(kind, id, ym, s.now())); err != nil {
			// Don't fail the request, the transaction is saved.
			slog.ErrorContext(ctx, "Failed to publish ledger event",
				"kind", kind,
				"transaction_id", id,
				"error", err)
		}
	}
}
