package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"fintrack/internal/core"
)

const transactionColumns = `id, amount_cents, type, category_id, account_id, to_account_id, occurred_at,
	note, tags, location, attachments, created_at, updated_at`

func (r *SQLiteRepository) scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx                     core.Transaction
		typ, tags, attachments string
		category, toAccount    sql.NullInt64
		occurred, created, upd int64
	)
	if err := s.Scan(&tx.ID, &tx.Amount.Cents, &typ, &category, &tx.AccountID, &toAccount, &occurred,
		&tx.Note, &tags, &tx.Location, &attachments, &created, &upd); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if tx.Tags, err = decodeList(tags); err != nil {
		return core.Transaction{}, err
	}
	if tx.Attachments, err = decodeList(attachments); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.CategoryID = idPtr(category)
	tx.ToAccountID = idPtr(toAccount)
	tx.Date = r.fromMillis(occurred)
	tx.CreatedAt = r.fromMillis(created)
	tx.UpdatedAt = r.fromMillis(upd)
	return tx, nil
}

// CreateTransaction inserts t and applies its balance effect in the same SQL
// transaction.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := r.now()
	err := r.withTx(ctx, "create transaction", func(tx *sql.Tx) error {
		tags, err := encodeList(t.Tags)
		if err != nil {
			return core.DatabaseError("create transaction", err)
		}
		attachments, err := encodeList(t.Attachments)
		if err != nil {
			return core.DatabaseError("create transaction", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (amount_cents, type, category_id, account_id, to_account_id, occurred_at,
			 note, tags, location, attachments, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.Amount.Cents, string(t.Type), nullID(t.CategoryID), t.AccountID, nullID(t.ToAccountID), toMillis(t.Date),
			t.Note, tags, t.Location, attachments, toMillis(now), toMillis(now))
		if err != nil {
			return mapError("create transaction", err)
		}
		if t.ID, err = res.LastInsertId(); err != nil {
			return core.DatabaseError("create transaction", err)
		}
		return r.applyBalance(ctx, tx, core.BalanceEffect(t), 1)
	})
	if err != nil {
		return core.Transaction{}, err
	}
	t.CreatedAt = now.In(r.loc)
	t.UpdatedAt = t.CreatedAt

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"account_id", t.AccountID,
		"date", t.Date.Format(time.DateOnly))
	return t, nil
}

// UpdateTransaction replaces the stored row, reverting the previous balance
// effect and applying the new one atomically. It returns the previous row.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var prev core.Transaction
	err := r.withTx(ctx, "update transaction", func(tx *sql.Tx) error {
		var err error
		prev, err = r.scanTransaction(tx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, t.ID))
		if err != nil {
			return mapError("update transaction", err)
		}
		if err := r.applyBalance(ctx, tx, core.BalanceEffect(prev), -1); err != nil {
			return err
		}
		tags, err := encodeList(t.Tags)
		if err != nil {
			return core.DatabaseError("update transaction", err)
		}
		attachments, err := encodeList(t.Attachments)
		if err != nil {
			return core.DatabaseError("update transaction", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET amount_cents = ?, type = ?, category_id = ?, account_id = ?, to_account_id = ?,
			 occurred_at = ?, note = ?, tags = ?, location = ?, attachments = ?, updated_at = ? WHERE id = ?`,
			t.Amount.Cents, string(t.Type), nullID(t.CategoryID), t.AccountID, nullID(t.ToAccountID), toMillis(t.Date),
			t.Note, tags, t.Location, attachments, toMillis(r.now()), t.ID); err != nil {
			return mapError("update transaction", err)
		}
		return r.applyBalance(ctx, tx, core.BalanceEffect(t), 1)
	})
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction updated",
		"id", t.ID,
		"previous_amount_cents", prev.Amount.Cents,
		"amount_cents", t.Amount.Cents)
	return prev, nil
}

// DeleteTransaction removes the row and reverts its balance effect. It
// returns the deleted row.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	var prev core.Transaction
	err := r.withTx(ctx, "delete transaction", func(tx *sql.Tx) error {
		var err error
		prev, err = r.scanTransaction(tx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
		if err != nil {
			return mapError("delete transaction", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
			return mapError("delete transaction", err)
		}
		return r.applyBalance(ctx, tx, core.BalanceEffect(prev), -1)
	})
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id, "amount_cents", prev.Amount.Cents)
	return prev, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, err := r.scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return core.Transaction{}, mapError("get transaction", err)
	}
	return t, nil
}

// ListTransactions returns transactions with from <= date < to, newest
// first. A zero bound is open.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1 = 1`
	var args []any
	if !from.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, toMillis(from))
	}
	if !to.IsZero() {
		query += ` AND occurred_at < ?`
		args = append(args, toMillis(to))
	}
	return r.listTransactions(ctx, r.db, query+` ORDER BY occurred_at DESC, id DESC`, args...)
}

// ListMonthTransactions returns the transactions dated within ym.
func (r *SQLiteRepository) ListMonthTransactions(ctx context.Context, ym core.YearMonth) ([]core.Transaction, error) {
	return r.ListTransactions(ctx, ym.Start(r.loc), ym.End(r.loc))
}

func (r *SQLiteRepository) listTransactions(ctx context.Context, q queryer, query string, args ...any) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, mapError("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list transactions", err)
	}
	return out, nil
}
