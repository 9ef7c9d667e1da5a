package storage

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// SumByType totals transactions of typ dated in [from, to).
func (r *SQLiteRepository) SumByType(ctx context.Context, typ core.TransactionType, from, to time.Time) (core.Money, error) {
	var m core.Money
	err := r.db.QueryRowContext(ctx,
		`SELECT IFNULL(SUM(ABS(amount_cents)), 0) FROM transactions
		 WHERE type = ? AND occurred_at >= ? AND occurred_at < ?`,
		string(typ), toMillis(from), toMillis(to)).Scan(&m.Cents)
	if err != nil {
		return core.Money{}, mapError("sum by type", err)
	}
	return m, nil
}

// CountTransactions counts transactions dated in [from, to).
func (r *SQLiteRepository) CountTransactions(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE occurred_at >= ? AND occurred_at < ?`,
		toMillis(from), toMillis(to)).Scan(&n)
	if err != nil {
		return 0, mapError("count transactions", err)
	}
	return n, nil
}

// CategorySums groups transactions of typ in [from, to) by category, largest
// total first.
func (r *SQLiteRepository) CategorySums(ctx context.Context, typ core.TransactionType, from, to time.Time) ([]core.CategorySum, error) {
	return r.categorySums(ctx, typ, from, to, -1)
}

// TopCategories is CategorySums limited to the n largest.
func (r *SQLiteRepository) TopCategories(ctx context.Context, typ core.TransactionType, from, to time.Time, n int) ([]core.CategorySum, error) {
	if n <= 0 {
		return nil, core.ValidationError("top categories", "limit must be positive")
	}
	return r.categorySums(ctx, typ, from, to, n)
}

func (r *SQLiteRepository) categorySums(ctx context.Context, typ core.TransactionType, from, to time.Time, limit int) ([]core.CategorySum, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT IFNULL(t.category_id, 0), IFNULL(c.name, ''), SUM(ABS(t.amount_cents)) AS total, COUNT(*)
		   FROM transactions t
		   LEFT JOIN categories c ON c.id = t.category_id
		  WHERE t.type = ? AND t.occurred_at >= ? AND t.occurred_at < ?
		  GROUP BY IFNULL(t.category_id, 0)
		  ORDER BY total DESC, 1
		  LIMIT ?`,
		string(typ), toMillis(from), toMillis(to), limit)
	if err != nil {
		return nil, mapError("category sums", err)
	}
	defer rows.Close()

	var out []core.CategorySum
	for rows.Next() {
		var s core.CategorySum
		if err := rows.Scan(&s.CategoryID, &s.CategoryName, &s.Total.Cents, &s.Count); err != nil {
			return nil, mapError("scan category sum", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("category sums", err)
	}
	return out, nil
}
