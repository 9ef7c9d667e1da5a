package services

import (
	"context"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// BudgetStore is the persistence the budget use cases need.
type BudgetStore interface {
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	FindBudget(ctx context.Context, categoryID *int64, ym core.YearMonth) (core.Budget, bool, error)
	CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	GetBudget(ctx context.Context, id int64) (core.Budget, error)
	UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	DeleteBudget(ctx context.Context, id int64) error
	ListBudgets(ctx context.Context, ym core.YearMonth) ([]core.Budget, error)
	BudgetProgress(ctx context.Context, ym core.YearMonth) ([]core.BudgetProgress, error)
	SumByType(ctx context.Context, typ core.TransactionType, from, to time.Time) (core.Money, error)
	ListBudgetAlerts(ctx context.Context, ym core.YearMonth) ([]core.BudgetAlert, error)
	Location() *time.Location
}

// LedgerStore is the persistence the transaction use cases need.
type LedgerStore interface {
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	ListAccounts(ctx context.Context, includeArchived bool) ([]core.Account, error)
	ListCategories(ctx context.Context, typ core.CategoryType, includeArchived bool) ([]core.Category, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) (core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, from, to time.Time) ([]core.Transaction, error)
	Location() *time.Location
}

// CatalogStore persists accounts and categories.
type CatalogStore interface {
	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	ListAccounts(ctx context.Context, includeArchived bool) ([]core.Account, error)
	UpdateAccount(ctx context.Context, a core.Account) (core.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	ListCategories(ctx context.Context, typ core.CategoryType, includeArchived bool) ([]core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	ReorderCategories(ctx context.Context, ids []int64) error
}

// RecurringStore persists recurring transaction templates.
type RecurringStore interface {
	CreateRecurring(ctx context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error)
	GetRecurring(ctx context.Context, id int64) (core.RecurringTransaction, error)
	ListRecurring(ctx context.Context, activeAt time.Time) ([]core.RecurringTransaction, error)
	UpdateRecurringLastExecution(ctx context.Context, id int64, at time.Time) error
	DeleteRecurring(ctx context.Context, id int64) error
}

// EventPublisher announces ledger changes to background consumers.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev amqp.LedgerEvent) error
}

// StatsInvalidator drops cached reports made stale by a write.
type StatsInvalidator interface {
	InvalidateMonth(ym core.YearMonth)
	Clear()
}
