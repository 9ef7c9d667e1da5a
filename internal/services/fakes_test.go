package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// memStore is an in-memory store covering every port the services use.
type memStore struct {
	mu           sync.Mutex
	nextID       int64
	accounts     map[int64]core.Account
	categories   map[int64]core.Category
	transactions map[int64]core.Transaction
	budgets      map[int64]core.Budget
	recurring    map[int64]core.RecurringTransaction
	progress     []core.BudgetProgress
	expenseSum   core.Money

	budgetWrites int
	txWrites     int
	failCreateTx error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:     map[int64]core.Account{},
		categories:   map[int64]core.Category{},
		transactions: map[int64]core.Transaction{},
		budgets:      map[int64]core.Budget{},
		recurring:    map[int64]core.RecurringTransaction{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Location() *time.Location { return time.UTC }

func (m *memStore) addAccount(name string) core.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := core.Account{ID: m.id(), Name: name, Type: core.AccountCash, Currency: "EUR"}
	m.accounts[a.ID] = a
	return a
}

func (m *memStore) addCategory(name string, typ core.CategoryType) core.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := core.Category{ID: m.id(), Name: name, Type: typ}
	m.categories[c.ID] = c
	return c
}

func (m *memStore) CreateAccount(_ context.Context, a core.Account) (core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	m.accounts[a.ID] = a
	return a, nil
}

func (m *memStore) GetAccount(_ context.Context, id int64) (core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return core.Account{}, core.NotFoundError("get account", "account %d not found", id)
	}
	return a, nil
}

func (m *memStore) ListAccounts(context.Context, bool) ([]core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Account
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateAccount(_ context.Context, a core.Account) (core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.accounts[a.ID]
	if !ok {
		return core.Account{}, core.NotFoundError("update account", "account %d not found", a.ID)
	}
	a.Balance = cur.Balance
	m.accounts[a.ID] = a
	return a, nil
}

func (m *memStore) DeleteAccount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

func (m *memStore) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	m.categories[c.ID] = c
	return c, nil
}

func (m *memStore) GetCategory(_ context.Context, id int64) (core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return core.Category{}, core.NotFoundError("get category", "category %d not found", id)
	}
	return c, nil
}

func (m *memStore) ListCategories(_ context.Context, typ core.CategoryType, _ bool) ([]core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Category
	for _, c := range m.categories {
		if typ == "" || c.Type == typ {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateCategory(_ context.Context, c core.Category) (core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
	return c, nil
}

func (m *memStore) DeleteCategory(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.categories, id)
	return nil
}

func (m *memStore) ReorderCategories(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		c := m.categories[id]
		c.OrderIndex = i + 1
		m.categories[id] = c
	}
	return nil
}

func (m *memStore) applyEffect(tx core.Transaction, sign int64) {
	for id, delta := range core.BalanceEffect(tx) {
		a := m.accounts[id]
		a.Balance.Cents += sign * delta
		m.accounts[id] = a
	}
}

func (m *memStore) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateTx != nil {
		return core.Transaction{}, m.failCreateTx
	}
	m.txWrites++
	t.ID = m.id()
	m.transactions[t.ID] = t
	m.applyEffect(t, 1)
	return t, nil
}

func (m *memStore) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.transactions[t.ID]
	if !ok {
		return core.Transaction{}, core.NotFoundError("update transaction", "transaction %d not found", t.ID)
	}
	m.txWrites++
	m.applyEffect(prev, -1)
	m.applyEffect(t, 1)
	m.transactions[t.ID] = t
	return prev, nil
}

func (m *memStore) DeleteTransaction(_ context.Context, id int64) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.transactions[id]
	if !ok {
		return core.Transaction{}, core.NotFoundError("delete transaction", "transaction %d not found", id)
	}
	m.txWrites++
	m.applyEffect(prev, -1)
	delete(m.transactions, id)
	return prev, nil
}

func (m *memStore) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return core.Transaction{}, core.NotFoundError("get transaction", "transaction %d not found", id)
	}
	return t, nil
}

func (m *memStore) ListTransactions(_ context.Context, from, to time.Time) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Transaction
	for _, t := range m.transactions {
		if !from.IsZero() && t.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !t.Date.Before(to) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (m *memStore) FindBudget(_ context.Context, categoryID *int64, ym core.YearMonth) (core.Budget, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := core.Budget{CategoryID: categoryID}.CategoryKey()
	for _, b := range m.budgets {
		if b.CategoryKey() == key && b.Period == ym {
			return b, true, nil
		}
	}
	return core.Budget{}, false, nil
}

func (m *memStore) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgetWrites++
	b.ID = m.id()
	m.budgets[b.ID] = b
	return b, nil
}

func (m *memStore) GetBudget(_ context.Context, id int64) (core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.budgets[id]
	if !ok {
		return core.Budget{}, core.NotFoundError("get budget", "budget %d not found", id)
	}
	return b, nil
}

func (m *memStore) UpdateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgetWrites++
	m.budgets[b.ID] = b
	return b, nil
}

func (m *memStore) DeleteBudget(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgetWrites++
	delete(m.budgets, id)
	return nil
}

func (m *memStore) ListBudgets(_ context.Context, ym core.YearMonth) ([]core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Budget
	for _, b := range m.budgets {
		if b.Period == ym {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryKey() < out[j].CategoryKey() })
	return out, nil
}

func (m *memStore) BudgetProgress(context.Context, core.YearMonth) ([]core.BudgetProgress, error) {
	return m.progress, nil
}

func (m *memStore) SumByType(context.Context, core.TransactionType, time.Time, time.Time) (core.Money, error) {
	return m.expenseSum, nil
}

func (m *memStore) ListBudgetAlerts(context.Context, core.YearMonth) ([]core.BudgetAlert, error) {
	return nil, nil
}

func (m *memStore) CreateRecurring(_ context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt.ID = m.id()
	rt.Active = true
	m.recurring[rt.ID] = rt
	return rt, nil
}

func (m *memStore) GetRecurring(_ context.Context, id int64) (core.RecurringTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.recurring[id]
	if !ok {
		return core.RecurringTransaction{}, core.NotFoundError("get recurring", "recurring %d not found", id)
	}
	return rt, nil
}

func (m *memStore) ListRecurring(_ context.Context, activeAt time.Time) ([]core.RecurringTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.RecurringTransaction
	for _, rt := range m.recurring {
		if !activeAt.IsZero() && (!rt.Active || rt.StartDate.After(activeAt)) {
			continue
		}
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateRecurringLastExecution(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt := m.recurring[id]
	rt.LastExecution = at
	m.recurring[id] = rt
	return nil
}

func (m *memStore) DeleteRecurring(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recurring, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

type recordingInvalidator struct {
	months  []core.YearMonth
	cleared int
}

func (r *recordingInvalidator) InvalidateMonth(ym core.YearMonth) { r.months = append(r.months, ym) }
func (r *recordingInvalidator) Clear()                           { r.cleared++ }
