package storage

import (
	"context"
	"log/slog"

	"fintrack/internal/core"
)

const accountColumns = `id, name, type, balance_cents, currency, archived, created_at, updated_at`

func (r *SQLiteRepository) scanAccount(s scanner) (core.Account, error) {
	var (
		a        core.Account
		typ      string
		archived int
		created  int64
		updated  int64
	)
	if err := s.Scan(&a.ID, &a.Name, &typ, &a.Balance.Cents, &a.Currency, &archived, &created, &updated); err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(typ)
	a.Archived = archived != 0
	a.CreatedAt = r.fromMillis(created)
	a.UpdatedAt = r.fromMillis(updated)
	return a, nil
}

// CreateAccount inserts a with its opening balance.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (name, type, balance_cents, currency, archived, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Name, string(a.Type), a.Balance.Cents, a.Currency, boolInt(a.Archived), toMillis(now), toMillis(now))
	if err != nil {
		return core.Account{}, mapError("create account", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Account{}, core.DatabaseError("create account", err)
	}
	a.ID = id
	a.CreatedAt = now.In(r.loc)
	a.UpdatedAt = a.CreatedAt

	slog.InfoContext(ctx, "Account created", "id", id, "name", a.Name, "type", a.Type)
	return a, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	a, err := r.scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		return core.Account{}, mapError("get account", err)
	}
	return a, nil
}

// ListAccounts returns accounts ordered by id; archived ones only when asked.
func (r *SQLiteRepository) ListAccounts(ctx context.Context, includeArchived bool) ([]core.Account, error) {
	return r.listAccounts(ctx, r.db, includeArchived)
}

func (r *SQLiteRepository) listAccounts(ctx context.Context, q queryer, includeArchived bool) ([]core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY id`)
	if err != nil {
		return nil, mapError("list accounts", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, mapError("scan account", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list accounts", err)
	}
	return out, nil
}

// UpdateAccount changes descriptive fields. The balance is owned by
// transaction writes and is left untouched.
func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, type = ?, currency = ?, archived = ?, updated_at = ? WHERE id = ?`,
		a.Name, string(a.Type), a.Currency, boolInt(a.Archived), toMillis(r.now()), a.ID)
	if err != nil {
		return core.Account{}, mapError("update account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Account{}, core.NotFoundError("update account", "account %d not found", a.ID)
	}
	slog.InfoContext(ctx, "Account updated", "id", a.ID)
	return r.GetAccount(ctx, a.ID)
}

// DeleteAccount removes an account. Accounts referenced by transactions
// cannot be deleted (ConflictError); archive them instead.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return mapError("delete account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundError("delete account", "account %d not found", id)
	}
	slog.InfoContext(ctx, "Account deleted", "id", id)
	return nil
}
