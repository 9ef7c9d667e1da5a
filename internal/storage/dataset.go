package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"fintrack/internal/core"
)

// ExportDataset reads every entity in one SQL transaction so the snapshot is
// consistent.
func (r *SQLiteRepository) ExportDataset(ctx context.Context) (core.Dataset, error) {
	var d core.Dataset
	err := r.withTx(ctx, "export dataset", func(tx *sql.Tx) error {
		var err error
		if d.Accounts, err = r.listAccounts(ctx, tx, true); err != nil {
			return err
		}
		if d.Categories, err = r.listCategories(ctx, tx,
			`SELECT `+categoryColumns+` FROM categories ORDER BY id`); err != nil {
			return err
		}
		if d.Transactions, err = r.listTransactions(ctx, tx,
			`SELECT `+transactionColumns+` FROM transactions ORDER BY id`); err != nil {
			return err
		}
		if d.Budgets, err = r.listAllBudgets(ctx, tx); err != nil {
			return err
		}
		d.Settings, err = r.allSettings(ctx, tx)
		return err
	})
	if err != nil {
		return core.Dataset{}, err
	}
	return d, nil
}

// ReplaceDataset deletes all ledger data and inserts d with its ids, in one
// SQL transaction. Account balances are taken from d as-is. Settings are
// kept when d.Settings is nil.
func (r *SQLiteRepository) ReplaceDataset(ctx context.Context, d core.Dataset) error {
	const op = "replace dataset"
	err := r.withTx(ctx, op, func(tx *sql.Tx) error {
		// Parents may be inserted after their children.
		if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
			return mapError(op, err)
		}
		for _, table := range []string{"budget_alerts", "budgets", "recurring_transactions", "transactions", "categories", "accounts"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return mapError(op, err)
			}
		}

		now := toMillis(r.now())
		for _, a := range d.Accounts {
			created, updated := toMillis(a.CreatedAt), toMillis(a.UpdatedAt)
			if a.CreatedAt.IsZero() {
				created = now
			}
			if a.UpdatedAt.IsZero() {
				updated = now
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO accounts (id, name, type, balance_cents, currency, archived, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, a.Name, string(a.Type), a.Balance.Cents, a.Currency, boolInt(a.Archived), created, updated); err != nil {
				return mapError(op, err)
			}
		}
		for _, c := range d.Categories {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO categories (id, name, type, icon, color, parent_id, order_index, archived, monthly_budget_cents)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, c.Name, string(c.Type), c.Icon, c.Color, nullID(c.ParentID), c.OrderIndex, boolInt(c.Archived),
				nullMoney(c.MonthlyBudget)); err != nil {
				return mapError(op, err)
			}
		}
		for _, t := range d.Transactions {
			tags, err := encodeList(t.Tags)
			if err != nil {
				return core.DatabaseError(op, err)
			}
			attachments, err := encodeList(t.Attachments)
			if err != nil {
				return core.DatabaseError(op, err)
			}
			created, updated := toMillis(t.CreatedAt), toMillis(t.UpdatedAt)
			if t.CreatedAt.IsZero() {
				created = now
			}
			if t.UpdatedAt.IsZero() {
				updated = now
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO transactions (id, amount_cents, type, category_id, account_id, to_account_id, occurred_at,
				 note, tags, location, attachments, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, t.Amount.Cents, string(t.Type), nullID(t.CategoryID), t.AccountID, nullID(t.ToAccountID),
				toMillis(t.Date), t.Note, tags, t.Location, attachments, created, updated); err != nil {
				return mapError(op, err)
			}
		}
		for _, b := range d.Budgets {
			created, updated := toMillis(b.CreatedAt), toMillis(b.UpdatedAt)
			if b.CreatedAt.IsZero() {
				created = now
			}
			if b.UpdatedAt.IsZero() {
				updated = now
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO budgets (id, category_id, year, month, amount_cents, notify_threshold, note, enabled, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.ID, nullID(b.CategoryID), b.Period.Year, int(b.Period.Month), b.Amount.Cents, nullFloat(b.NotifyThreshold),
				b.Note, boolInt(b.Enabled), created, updated); err != nil {
				return mapError(op, err)
			}
		}
		if d.Settings != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM settings`); err != nil {
				return mapError(op, err)
			}
		}
		for k, v := range d.Settings {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)`, k, v, now); err != nil {
				return mapError(op, err)
			}
		}
		return checkForeignKeys(ctx, tx, op)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Dataset replaced",
		"accounts", len(d.Accounts),
		"categories", len(d.Categories),
		"transactions", len(d.Transactions),
		"budgets", len(d.Budgets))
	return nil
}

// checkForeignKeys fails while the transaction can still be rolled back; a
// COMMIT refused for deferred violations would leave it open.
func checkForeignKeys(ctx context.Context, tx *sql.Tx, op string) error {
	rows, err := tx.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return mapError(op, err)
	}
	defer rows.Close()
	if rows.Next() {
		var (
			table, parent string
			rowid         sql.NullInt64
			fkid          int
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return mapError(op, err)
		}
		return core.ConflictError(op, "row %d of %s references a missing %s row", rowid.Int64, table, parent)
	}
	return mapError(op, rows.Err())
}
