package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"fintrack/internal/core"
)

const recurringColumns = `id, amount_cents, type, category_id, account_id, to_account_id, note, every,
	start_date, end_date, last_execution, active`

func (r *SQLiteRepository) scanRecurring(s scanner) (core.RecurringTransaction, error) {
	var (
		rt                  core.RecurringTransaction
		typ, every          string
		category, toAccount sql.NullInt64
		start               int64
		end, last           sql.NullInt64
		active              int
	)
	if err := s.Scan(&rt.ID, &rt.Amount.Cents, &typ, &category, &rt.AccountID, &toAccount, &rt.Note, &every,
		&start, &end, &last, &active); err != nil {
		return core.RecurringTransaction{}, err
	}
	rt.Type = core.TransactionType(typ)
	rt.Every = core.RepetitionType(every)
	rt.CategoryID = idPtr(category)
	rt.ToAccountID = idPtr(toAccount)
	rt.StartDate = r.fromMillis(start)
	rt.EndDate = r.fromNullMillis(end)
	rt.LastExecution = r.fromNullMillis(last)
	rt.Active = active != 0
	return rt, nil
}

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_transactions (amount_cents, type, category_id, account_id, to_account_id, note, every,
		 start_date, end_date, last_execution, active) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.Amount.Cents, string(rt.Type), nullID(rt.CategoryID), rt.AccountID, nullID(rt.ToAccountID), rt.Note,
		string(rt.Every), toMillis(rt.StartDate), nullMillis(rt.EndDate), nullMillis(rt.LastExecution), boolInt(rt.Active))
	if err != nil {
		return core.RecurringTransaction{}, mapError("create recurring transaction", err)
	}
	if rt.ID, err = res.LastInsertId(); err != nil {
		return core.RecurringTransaction{}, core.DatabaseError("create recurring transaction", err)
	}
	slog.InfoContext(ctx, "Recurring transaction created", "id", rt.ID, "every", rt.Every, "amount_cents", rt.Amount.Cents)
	return rt, nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, id int64) (core.RecurringTransaction, error) {
	rt, err := r.scanRecurring(r.db.QueryRowContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, id))
	if err != nil {
		return core.RecurringTransaction{}, mapError("get recurring transaction", err)
	}
	return rt, nil
}

// ListRecurring returns every template; activeAt filters to templates active
// and started by that instant when non-zero.
func (r *SQLiteRepository) ListRecurring(ctx context.Context, activeAt time.Time) ([]core.RecurringTransaction, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_transactions`
	var args []any
	if !activeAt.IsZero() {
		query += ` WHERE active = 1 AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)`
		args = append(args, toMillis(activeAt), toMillis(activeAt))
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, mapError("list recurring transactions", err)
	}
	defer rows.Close()

	var out []core.RecurringTransaction
	for rows.Next() {
		rt, err := r.scanRecurring(rows)
		if err != nil {
			return nil, mapError("scan recurring transaction", err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list recurring transactions", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateRecurringLastExecution(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE recurring_transactions SET last_execution = ? WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return mapError("update recurring execution", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundError("update recurring execution", "recurring transaction %d not found", id)
	}
	return nil
}

func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_transactions WHERE id = ?`, id)
	if err != nil {
		return mapError("delete recurring transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundError("delete recurring transaction", "recurring transaction %d not found", id)
	}
	slog.InfoContext(ctx, "Recurring transaction deleted", "id", id)
	return nil
}
