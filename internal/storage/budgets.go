package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"fintrack/internal/core"
)

const budgetColumns = `id, category_id, year, month, amount_cents, notify_threshold, note, enabled, created_at, updated_at`

func (r *SQLiteRepository) scanBudget(s scanner) (core.Budget, error) {
	var (
		b                core.Budget
		category         sql.NullInt64
		month, enabled   int
		threshold        sql.NullFloat64
		created, updated int64
	)
	if err := s.Scan(&b.ID, &category, &b.Period.Year, &month, &b.Amount.Cents, &threshold, &b.Note, &enabled, &created, &updated); err != nil {
		return core.Budget{}, err
	}
	b.CategoryID = idPtr(category)
	b.Period.Month = time.Month(month)
	if threshold.Valid {
		th := threshold.Float64
		b.NotifyThreshold = &th
	}
	b.Enabled = enabled != 0
	b.CreatedAt = r.fromMillis(created)
	b.UpdatedAt = r.fromMillis(updated)
	return b, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// CreateBudget inserts b. The unique (category, month) index turns a
// duplicate into a ConflictError.
func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (category_id, year, month, amount_cents, notify_threshold, note, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(b.CategoryID), b.Period.Year, int(b.Period.Month), b.Amount.Cents, nullFloat(b.NotifyThreshold),
		b.Note, boolInt(b.Enabled), toMillis(now), toMillis(now))
	if err != nil {
		return core.Budget{}, mapError("create budget", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return core.Budget{}, core.DatabaseError("create budget", err)
	}
	b.CreatedAt = now.In(r.loc)
	b.UpdatedAt = b.CreatedAt

	slog.InfoContext(ctx, "Budget created",
		"id", b.ID,
		"category_id", b.CategoryKey(),
		"year_month", b.Period.String(),
		"amount_cents", b.Amount.Cents)
	return b, nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id int64) (core.Budget, error) {
	b, err := r.scanBudget(r.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if err != nil {
		return core.Budget{}, mapError("get budget", err)
	}
	return b, nil
}

// FindBudget returns the budget for (categoryID, ym); a nil categoryID looks
// up the overall budget. ok is false when none exists.
func (r *SQLiteRepository) FindBudget(ctx context.Context, categoryID *int64, ym core.YearMonth) (core.Budget, bool, error) {
	b, err := r.scanBudget(r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE IFNULL(category_id, 0) = ? AND year = ? AND month = ?`,
		core.Budget{CategoryID: categoryID}.CategoryKey(), ym.Year, int(ym.Month)))
	if err == sql.ErrNoRows {
		return core.Budget{}, false, nil
	}
	if err != nil {
		return core.Budget{}, false, mapError("find budget", err)
	}
	return b, true, nil
}

// ListBudgets returns the budgets of ym, overall first then by id.
func (r *SQLiteRepository) ListBudgets(ctx context.Context, ym core.YearMonth) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE year = ? AND month = ?
		 ORDER BY category_id IS NOT NULL, id`, ym.Year, int(ym.Month))
	if err != nil {
		return nil, mapError("list budgets", err)
	}
	return r.collectBudgets(rows)
}

// ListAllBudgets returns every budget ordered by period.
func (r *SQLiteRepository) ListAllBudgets(ctx context.Context) ([]core.Budget, error) {
	return r.listAllBudgets(ctx, r.db)
}

func (r *SQLiteRepository) listAllBudgets(ctx context.Context, q queryer) ([]core.Budget, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+budgetColumns+` FROM budgets ORDER BY year, month, id`)
	if err != nil {
		return nil, mapError("list budgets", err)
	}
	return r.collectBudgets(rows)
}

func (r *SQLiteRepository) collectBudgets(rows *sql.Rows) ([]core.Budget, error) {
	defer rows.Close()
	var out []core.Budget
	for rows.Next() {
		b, err := r.scanBudget(rows)
		if err != nil {
			return nil, mapError("scan budget", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list budgets", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets SET category_id = ?, year = ?, month = ?, amount_cents = ?, notify_threshold = ?,
		 note = ?, enabled = ?, updated_at = ? WHERE id = ?`,
		nullID(b.CategoryID), b.Period.Year, int(b.Period.Month), b.Amount.Cents, nullFloat(b.NotifyThreshold),
		b.Note, boolInt(b.Enabled), toMillis(r.now()), b.ID)
	if err != nil {
		return core.Budget{}, mapError("update budget", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Budget{}, core.NotFoundError("update budget", "budget %d not found", b.ID)
	}
	slog.InfoContext(ctx, "Budget updated", "id", b.ID, "amount_cents", b.Amount.Cents)
	return r.GetBudget(ctx, b.ID)
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return mapError("delete budget", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundError("delete budget", "budget %d not found", id)
	}
	slog.InfoContext(ctx, "Budget deleted", "id", id)
	return nil
}

// BudgetProgress joins every enabled budget of ym with the month's matching
// expense total: category budgets count their category, the overall budget
// counts every expense. Transfers and income never count.
func (r *SQLiteRepository) BudgetProgress(ctx context.Context, ym core.YearMonth) ([]core.BudgetProgress, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.id, IFNULL(b.category_id, 0), IFNULL(c.name, ''), b.amount_cents, b.notify_threshold,
		        (SELECT IFNULL(SUM(ABS(t.amount_cents)), 0) FROM transactions t
		          WHERE t.type = 'expense' AND t.occurred_at >= ? AND t.occurred_at < ?
		            AND (b.category_id IS NULL OR t.category_id = b.category_id)) AS spent
		   FROM budgets b
		   LEFT JOIN categories c ON c.id = b.category_id
		  WHERE b.year = ? AND b.month = ? AND b.enabled = 1
		  ORDER BY b.category_id IS NOT NULL, b.id`,
		toMillis(ym.Start(r.loc)), toMillis(ym.End(r.loc)), ym.Year, int(ym.Month))
	if err != nil {
		return nil, mapError("budget progress", err)
	}
	defer rows.Close()

	var out []core.BudgetProgress
	for rows.Next() {
		var (
			p         core.BudgetProgress
			threshold sql.NullFloat64
		)
		if err := rows.Scan(&p.BudgetID, &p.CategoryID, &p.CategoryName, &p.Amount.Cents, &threshold, &p.Spent.Cents); err != nil {
			return nil, mapError("scan budget progress", err)
		}
		if threshold.Valid {
			th := threshold.Float64
			p.NotifyThreshold = &th
		}
		p.Remaining = p.Amount.Sub(p.Spent)
		p.Progress = p.Spent.Percent(p.Amount)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("budget progress", err)
	}
	return out, nil
}

// RecordBudgetAlert stores an alert unless one already exists for the
// budget and month. It reports whether the alert is new.
func (r *SQLiteRepository) RecordBudgetAlert(ctx context.Context, a core.BudgetAlert) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO budget_alerts (budget_id, year, month, threshold, progress, fired_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.BudgetID, a.Period.Year, int(a.Period.Month), a.Threshold, a.Progress, toMillis(a.FiredAt))
	if err != nil {
		return false, mapError("record budget alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, core.DatabaseError("record budget alert", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Budget alert recorded", "budget_id", a.BudgetID, "year_month", a.Period.String())
	}
	return n > 0, nil
}

// ListBudgetAlerts returns the alerts fired for ym.
func (r *SQLiteRepository) ListBudgetAlerts(ctx context.Context, ym core.YearMonth) ([]core.BudgetAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, budget_id, year, month, threshold, progress, fired_at FROM budget_alerts
		 WHERE year = ? AND month = ? ORDER BY fired_at, id`, ym.Year, int(ym.Month))
	if err != nil {
		return nil, mapError("list budget alerts", err)
	}
	defer rows.Close()

	var out []core.BudgetAlert
	for rows.Next() {
		var (
			a     core.BudgetAlert
			month int
			fired int64
		)
		if err := rows.Scan(&a.ID, &a.BudgetID, &a.Period.Year, &month, &a.Threshold, &a.Progress, &fired); err != nil {
			return nil, mapError("scan budget alert", err)
		}
		a.Period.Month = time.Month(month)
		a.FiredAt = r.fromMillis(fired)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list budget alerts", err)
	}
	return out, nil
}
