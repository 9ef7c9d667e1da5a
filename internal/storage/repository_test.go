package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
)

var march = core.YearMonth{Year: 2025, Month: time.March}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), time.UTC)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

type fixture struct {
	cash, bank       core.Account
	food, fun, wages core.Category
}

func seed(t *testing.T, repo *SQLiteRepository) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	var err error
	if f.cash, err = repo.CreateAccount(ctx, core.Account{Name: "Cash", Type: core.AccountCash, Currency: "EUR", Balance: core.Money{Cents: 10000}}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if f.bank, err = repo.CreateAccount(ctx, core.Account{Name: "Bank", Type: core.AccountBankCard, Currency: "EUR"}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if f.food, err = repo.CreateCategory(ctx, core.Category{Name: "Food", Type: core.ExpenseCategory}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if f.fun, err = repo.CreateCategory(ctx, core.Category{Name: "Fun", Type: core.ExpenseCategory}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if f.wages, err = repo.CreateCategory(ctx, core.Category{Name: "Wages", Type: core.IncomeCategory}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	return f
}

func on(day int) time.Time {
	return time.Date(2025, time.March, day, 12, 0, 0, 0, time.UTC)
}

func mustCreateTx(t *testing.T, repo *SQLiteRepository, tx core.Transaction) core.Transaction {
	t.Helper()
	created, err := repo.CreateTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return created
}

func balance(t *testing.T, repo *SQLiteRepository, id int64) int64 {
	t.Helper()
	a, err := repo.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a.Balance.Cents
}

func TestTransactionBalanceLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	ctx := context.Background()

	exp := mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 2500}, Type: core.Expense, CategoryID: &f.food.ID,
		AccountID: f.cash.ID, Date: on(3), Tags: []string{"groceries"}})
	if got := balance(t, repo, f.cash.ID); got != 7500 {
		t.Fatalf("after expense: %d", got)
	}

	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 1000}, Type: core.Transfer, AccountID: f.cash.ID,
		ToAccountID: &f.bank.ID, Date: on(4)})
	if got := balance(t, repo, f.cash.ID); got != 6500 {
		t.Fatalf("after transfer, cash: %d", got)
	}
	if got := balance(t, repo, f.bank.ID); got != 1000 {
		t.Fatalf("after transfer, bank: %d", got)
	}

	exp.Amount = core.Money{Cents: 4000}
	exp.AccountID = f.bank.ID
	prev, err := repo.UpdateTransaction(ctx, exp)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if prev.Amount.Cents != 2500 || prev.AccountID != f.cash.ID {
		t.Fatalf("previous row not returned: %+v", prev)
	}
	if got := balance(t, repo, f.cash.ID); got != 9000 {
		t.Fatalf("after update, cash: %d", got)
	}
	if got := balance(t, repo, f.bank.ID); got != -3000 {
		t.Fatalf("after update, bank: %d", got)
	}

	if _, err := repo.DeleteTransaction(ctx, exp.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := balance(t, repo, f.bank.ID); got != 1000 {
		t.Fatalf("after delete, bank: %d", got)
	}
	if _, err := repo.GetTransaction(ctx, exp.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	in := core.Transaction{Amount: core.Money{Cents: 1234}, Type: core.Expense, CategoryID: &f.food.ID, AccountID: f.cash.ID,
		Date: on(10), Note: "lunch", Tags: []string{"work", "team"}, Location: "Milan", Attachments: []string{"2025/03/a.jpg"}}
	created := mustCreateTx(t, repo, in)

	got, err := repo.GetTransaction(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Note != "lunch" || got.Location != "Milan" || len(got.Tags) != 2 || got.Tags[1] != "team" ||
		len(got.Attachments) != 1 || !got.Date.Equal(in.Date) || *got.CategoryID != f.food.ID {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestFailedTransactionLeavesBalance(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	missing := int64(999)
	_, err := repo.CreateTransaction(context.Background(), core.Transaction{Amount: core.Money{Cents: 500}, Type: core.Transfer,
		AccountID: f.cash.ID, ToAccountID: &missing, Date: on(1)})
	if err == nil {
		t.Fatalf("expected error for missing destination account")
	}
	if got := balance(t, repo, f.cash.ID); got != 10000 {
		t.Fatalf("balance changed by failed write: %d", got)
	}
	txs, _ := repo.ListTransactions(context.Background(), time.Time{}, time.Time{})
	if len(txs) != 0 {
		t.Fatalf("row persisted by failed write")
	}
}

func TestConcurrentWritesKeepBalance(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	ctx := context.Background()

	const workers, perWorker = 8, 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tx := core.Transaction{Amount: core.Money{Cents: 100}, Type: core.Expense, CategoryID: &f.food.ID, AccountID: f.cash.ID, Date: on(5)}
				if w%2 == 1 {
					tx = core.Transaction{Amount: core.Money{Cents: 100}, Type: core.Transfer, AccountID: f.cash.ID, ToAccountID: &f.bank.ID, Date: on(5)}
				}
				if _, err := repo.CreateTransaction(ctx, tx); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent create: %v", err)
	}

	total := int64(workers * perWorker * 100)
	if got := balance(t, repo, f.cash.ID); got != 10000-total {
		t.Fatalf("cash balance: got %d want %d", got, 10000-total)
	}
	if got := balance(t, repo, f.bank.ID); got != total/2 {
		t.Fatalf("bank balance: got %d want %d", got, total/2)
	}
}

func TestBudgetUniqueness(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	ctx := context.Background()

	if _, err := repo.CreateBudget(ctx, core.Budget{CategoryID: &f.food.ID, Period: march, Amount: core.Money{Cents: 1000}, Enabled: true}); err != nil {
		t.Fatalf("first budget: %v", err)
	}
	_, err := repo.CreateBudget(ctx, core.Budget{CategoryID: &f.food.ID, Period: march, Amount: core.Money{Cents: 2000}, Enabled: true})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := repo.CreateBudget(ctx, core.Budget{Period: march, Amount: core.Money{Cents: 5000}, Enabled: true}); err != nil {
		t.Fatalf("overall budget: %v", err)
	}
	_, err = repo.CreateBudget(ctx, core.Budget{Period: march, Amount: core.Money{Cents: 5000}, Enabled: true})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict for second overall budget, got %v", err)
	}

	budgets, err := repo.ListBudgets(ctx, march)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(budgets) != 2 || !budgets[0].IsOverall() {
		t.Fatalf("unexpected budgets %+v", budgets)
	}
	if _, ok, _ := repo.FindBudget(ctx, nil, march); !ok {
		t.Fatalf("overall budget not found")
	}
	if _, ok, _ := repo.FindBudget(ctx, &f.fun.ID, march); ok {
		t.Fatalf("unexpected budget for fun")
	}
}

func TestBudgetProgress(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	ctx := context.Background()

	food, _ := repo.CreateBudget(ctx, core.Budget{CategoryID: &f.food.ID, Period: march, Amount: core.Money{Cents: 100000}, Enabled: true})
	fun, _ := repo.CreateBudget(ctx, core.Budget{CategoryID: &f.fun.ID, Period: march, Amount: core.Money{Cents: 5000}, Enabled: true})
	overall, _ := repo.CreateBudget(ctx, core.Budget{Period: march, Amount: core.Money{Cents: 200000}, Enabled: true})

	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 70000}, Type: core.Expense, CategoryID: &f.food.ID, AccountID: f.cash.ID, Date: on(1)})
	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 50000}, Type: core.Expense, CategoryID: &f.food.ID, AccountID: f.cash.ID, Date: on(31)})
	// Outside the month, income and transfers never count.
	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 9999}, Type: core.Expense, CategoryID: &f.food.ID, AccountID: f.cash.ID,
		Date: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)})
	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 9999}, Type: core.Income, CategoryID: &f.wages.ID, AccountID: f.cash.ID, Date: on(2)})
	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 9999}, Type: core.Transfer, AccountID: f.cash.ID, ToAccountID: &f.bank.ID, Date: on(2)})

	progress, err := repo.BudgetProgress(ctx, march)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(progress) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(progress))
	}
	byBudget := map[int64]core.BudgetProgress{}
	for _, p := range progress {
		byBudget[p.BudgetID] = p
	}

	p := byBudget[food.ID]
	if p.Spent.Cents != 120000 || p.Remaining.Cents != -20000 || p.Progress != 120 || p.CategoryName != "Food" {
		t.Fatalf("food progress: %+v", p)
	}
	p = byBudget[fun.ID]
	if p.Spent.Cents != 0 || p.Progress != 0 || p.Remaining.Cents != 5000 {
		t.Fatalf("fun progress: %+v", p)
	}
	p = byBudget[overall.ID]
	if p.CategoryID != core.OverallCategoryID || p.Spent.Cents != 120000 || p.Progress != 60 {
		t.Fatalf("overall progress: %+v", p)
	}
}

func TestDeleteCategoryCascadesBudgets(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	ctx := context.Background()
	if _, err := repo.CreateBudget(ctx, core.Budget{CategoryID: &f.fun.ID, Period: march, Amount: core.Money{Cents: 100}, Enabled: true}); err != nil {
		t.Fatalf("budget: %v", err)
	}
	if err := repo.DeleteCategory(ctx, f.fun.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	budgets, _ := repo.ListBudgets(ctx, march)
	if len(budgets) != 0 {
		t.Fatalf("budget survived category delete")
	}

	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 100}, Type: core.Expense, CategoryID: &f.food.ID, AccountID: f.cash.ID, Date: on(1)})
	if err := repo.DeleteCategory(ctx, f.food.ID); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict deleting used category, got %v", err)
	}
}

func TestAggregates(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	ctx := context.Background()
	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 300}, Type: core.Expense, CategoryID: &f.food.ID, AccountID: f.cash.ID, Date: on(1)})
	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 200}, Type: core.Expense, CategoryID: &f.food.ID, AccountID: f.cash.ID, Date: on(2)})
	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 100}, Type: core.Expense, CategoryID: &f.fun.ID, AccountID: f.cash.ID, Date: on(3)})
	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 900}, Type: core.Income, CategoryID: &f.wages.ID, AccountID: f.cash.ID, Date: on(3)})

	from, to := march.Start(time.UTC), march.End(time.UTC)
	sum, err := repo.SumByType(ctx, core.Expense, from, to)
	if err != nil || sum.Cents != 600 {
		t.Fatalf("sum: %d %v", sum.Cents, err)
	}
	n, err := repo.CountTransactions(ctx, from, to)
	if err != nil || n != 4 {
		t.Fatalf("count: %d %v", n, err)
	}
	top, err := repo.TopCategories(ctx, core.Expense, from, to, 1)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 1 || top[0].CategoryID != f.food.ID || top[0].Total.Cents != 500 || top[0].Count != 2 {
		t.Fatalf("top: %+v", top)
	}
	all, _ := repo.CategorySums(ctx, core.Expense, from, to)
	if len(all) != 2 {
		t.Fatalf("category sums: %+v", all)
	}
}

func TestReplaceDataset(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	ctx := context.Background()
	mustCreateTx(t, repo, core.Transaction{Amount: core.Money{Cents: 300}, Type: core.Expense, CategoryID: &f.food.ID, AccountID: f.cash.ID, Date: on(1)})
	if err := repo.SetSetting(ctx, "default_currency", "EUR"); err != nil {
		t.Fatalf("setting: %v", err)
	}

	snapshot, err := repo.ExportDataset(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	other := newTestRepo(t)
	// Child category listed before its parent.
	snapshot.Categories = append([]core.Category{{ID: 50, Name: "Snacks", Type: core.ExpenseCategory, ParentID: core.Int64Ptr(51)}},
		append(snapshot.Categories, core.Category{ID: 51, Name: "Treats", Type: core.ExpenseCategory})...)
	if err := other.ReplaceDataset(ctx, snapshot); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := other.ExportDataset(ctx)
	if err != nil {
		t.Fatalf("export replaced: %v", err)
	}
	if len(got.Accounts) != 2 || len(got.Categories) != 5 || len(got.Transactions) != 1 || got.Settings["default_currency"] != "EUR" {
		t.Fatalf("unexpected dataset %+v", got)
	}
	if got.Accounts[0].Balance.Cents != 9700 {
		t.Fatalf("balance not carried: %d", got.Accounts[0].Balance.Cents)
	}

	// A dangling reference rolls the whole replace back.
	bad := got
	bad.Transactions = []core.Transaction{{ID: 9, Amount: core.Money{Cents: 1}, Type: core.Expense, AccountID: 404, Date: on(1)}}
	if err := other.ReplaceDataset(ctx, bad); err == nil {
		t.Fatalf("expected foreign key failure")
	}
	after, _ := other.ExportDataset(ctx)
	if len(after.Transactions) != 1 || after.Transactions[0].ID != got.Transactions[0].ID {
		t.Fatalf("failed replace was not rolled back")
	}
}

func TestBudgetAlertsRecordedOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	b, err := repo.CreateBudget(ctx, core.Budget{Period: march, Amount: core.Money{Cents: 100}, Enabled: true, NotifyThreshold: core.Float64Ptr(0.5)})
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	alert := core.BudgetAlert{BudgetID: b.ID, Period: march, Threshold: 0.5, Progress: 70, FiredAt: on(2)}
	fresh, err := repo.RecordBudgetAlert(ctx, alert)
	if err != nil || !fresh {
		t.Fatalf("first record: %v %v", fresh, err)
	}
	fresh, err = repo.RecordBudgetAlert(ctx, alert)
	if err != nil || fresh {
		t.Fatalf("second record should be ignored: %v %v", fresh, err)
	}
	alerts, _ := repo.ListBudgetAlerts(ctx, march)
	if len(alerts) != 1 || alerts[0].Progress != 70 {
		t.Fatalf("alerts: %+v", alerts)
	}
}

func TestRecurringTemplates(t *testing.T) {
	repo := newTestRepo(t)
	f := seed(t, repo)
	ctx := context.Background()
	rt, err := repo.CreateRecurring(ctx, core.RecurringTransaction{Amount: core.Money{Cents: 999}, Type: core.Expense, CategoryID: &f.fun.ID,
		AccountID: f.cash.ID, Every: core.Monthly, StartDate: on(1), Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	active, _ := repo.ListRecurring(ctx, on(15))
	if len(active) != 1 || !active[0].LastExecution.IsZero() {
		t.Fatalf("active: %+v", active)
	}
	if err := repo.UpdateRecurringLastExecution(ctx, rt.ID, on(15)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.GetRecurring(ctx, rt.ID)
	if !got.LastExecution.Equal(on(15)) {
		t.Fatalf("last execution: %v", got.LastExecution)
	}
	none, _ := repo.ListRecurring(ctx, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))
	if len(none) != 0 {
		t.Fatalf("template active before start date")
	}
}
