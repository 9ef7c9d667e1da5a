package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"fintrack/internal/core"
)

const categoryColumns = `id, name, type, icon, color, parent_id, order_index, archived, monthly_budget_cents`

func scanCategory(s scanner) (core.Category, error) {
	var (
		c        core.Category
		typ      string
		parent   sql.NullInt64
		archived int
		budget   sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.Name, &typ, &c.Icon, &c.Color, &parent, &c.OrderIndex, &archived, &budget); err != nil {
		return core.Category{}, err
	}
	c.Type = core.CategoryType(typ)
	c.ParentID = idPtr(parent)
	c.Archived = archived != 0
	if budget.Valid {
		c.MonthlyBudget = &core.Money{Cents: budget.Int64}
	}
	return c, nil
}

func nullMoney(m *core.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Cents, Valid: true}
}

// CreateCategory inserts c. A zero OrderIndex appends it after the existing
// categories of the same type.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := r.withTx(ctx, "create category", func(tx *sql.Tx) error {
		if c.OrderIndex == 0 {
			if err := tx.QueryRowContext(ctx,
				`SELECT IFNULL(MAX(order_index), 0) + 1 FROM categories WHERE type = ?`, string(c.Type),
			).Scan(&c.OrderIndex); err != nil {
				return mapError("create category", err)
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO categories (name, type, icon, color, parent_id, order_index, archived, monthly_budget_cents)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Name, string(c.Type), c.Icon, c.Color, nullID(c.ParentID), c.OrderIndex, boolInt(c.Archived), nullMoney(c.MonthlyBudget))
		if err != nil {
			return mapError("create category", err)
		}
		c.ID, err = res.LastInsertId()
		if err != nil {
			return core.DatabaseError("create category", err)
		}
		return nil
	})
	if err != nil {
		return core.Category{}, err
	}
	slog.InfoContext(ctx, "Category created", "id", c.ID, "name", c.Name, "type", c.Type)
	return c, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if err != nil {
		return core.Category{}, mapError("get category", err)
	}
	return c, nil
}

// ListCategories returns categories ordered by order_index. An empty typ
// lists both types.
func (r *SQLiteRepository) ListCategories(ctx context.Context, typ core.CategoryType, includeArchived bool) ([]core.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE (? = '' OR type = ?)`
	if !includeArchived {
		query += ` AND archived = 0`
	}
	return r.listCategories(ctx, r.db, query+` ORDER BY type, order_index, id`, string(typ), string(typ))
}

func (r *SQLiteRepository) listCategories(ctx context.Context, q queryer, query string, args ...any) ([]core.Category, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, mapError("scan category", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list categories", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, type = ?, icon = ?, color = ?, parent_id = ?, order_index = ?,
		 archived = ?, monthly_budget_cents = ? WHERE id = ?`,
		c.Name, string(c.Type), c.Icon, c.Color, nullID(c.ParentID), c.OrderIndex, boolInt(c.Archived), nullMoney(c.MonthlyBudget), c.ID)
	if err != nil {
		return core.Category{}, mapError("update category", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Category{}, core.NotFoundError("update category", "category %d not found", c.ID)
	}
	slog.InfoContext(ctx, "Category updated", "id", c.ID)
	return c, nil
}

// DeleteCategory removes a category and, through the foreign key cascade,
// its budgets. Categories still used by transactions are a ConflictError.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return mapError("delete category", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundError("delete category", "category %d not found", id)
	}
	slog.InfoContext(ctx, "Category deleted", "id", id)
	return nil
}

// ReorderCategories assigns order_index 1..n following ids.
func (r *SQLiteRepository) ReorderCategories(ctx context.Context, ids []int64) error {
	err := r.withTx(ctx, "reorder categories", func(tx *sql.Tx) error {
		for i, id := range ids {
			res, err := tx.ExecContext(ctx, `UPDATE categories SET order_index = ? WHERE id = ?`, i+1, id)
			if err != nil {
				return mapError("reorder categories", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return core.NotFoundError("reorder categories", "category %d not found", id)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Categories reordered", "count", len(ids))
	return nil
}
