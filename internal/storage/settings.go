package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"fintrack/internal/core"
)

// GetSetting returns the value stored under key; ok is false when unset.
func (r *SQLiteRepository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapError("get setting", err)
	}
	return v, true, nil
}

func (r *SQLiteRepository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(r.now()))
	if err != nil {
		return mapError("set setting", err)
	}
	slog.DebugContext(ctx, "Setting stored", "key", key)
	return nil
}

func (r *SQLiteRepository) DeleteSetting(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return mapError("delete setting", err)
	}
	return nil
}

// AllSettings returns every stored setting.
func (r *SQLiteRepository) AllSettings(ctx context.Context) (map[string]string, error) {
	return r.allSettings(ctx, r.db)
}

func (r *SQLiteRepository) allSettings(ctx context.Context, q queryer) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, mapError("list settings", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, mapError("scan setting", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list settings", err)
	}
	return out, nil
}

// RecordBackup stores metadata about a produced backup archive.
func (r *SQLiteRepository) RecordBackup(ctx context.Context, rec core.BackupRecord) (core.BackupRecord, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO backup_records (file_name, size_bytes, transactions, created_at) VALUES (?, ?, ?, ?)`,
		rec.FileName, rec.SizeBytes, rec.Transactions, toMillis(rec.CreatedAt))
	if err != nil {
		return core.BackupRecord{}, mapError("record backup", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return core.BackupRecord{}, core.DatabaseError("record backup", err)
	}
	slog.InfoContext(ctx, "Backup recorded", "id", rec.ID, "file", rec.FileName, "size_bytes", rec.SizeBytes)
	return rec, nil
}

// LatestBackup returns the most recent backup record; ok is false when none.
func (r *SQLiteRepository) LatestBackup(ctx context.Context) (core.BackupRecord, bool, error) {
	var (
		rec     core.BackupRecord
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, file_name, size_bytes, transactions, created_at FROM backup_records ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&rec.ID, &rec.FileName, &rec.SizeBytes, &rec.Transactions, &created)
	if err == sql.ErrNoRows {
		return core.BackupRecord{}, false, nil
	}
	if err != nil {
		return core.BackupRecord{}, false, mapError("latest backup", err)
	}
	rec.CreatedAt = r.fromMillis(created)
	return rec, true, nil
}
