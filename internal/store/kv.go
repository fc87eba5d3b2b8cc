package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// KVChange is one entry of the kv change feed.
type KVChange struct {
	Seq      int64
	Key      string
	OldValue string
	NewValue string
	Removed  bool
	Origin   string
	At       time.Time
}

// GetValue returns the value stored under key and whether it exists.
func GetValue(ctx context.Context, db DBTX, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting value %q: %w", key, err)
	}
	return value, true, nil
}

// SetValue stores value under key, replacing any previous value.
func SetValue(ctx context.Context, db DBTX, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting value %q: %w", key, err)
	}
	return nil
}

// DeleteValue removes key. It reports whether a value was removed.
func DeleteValue(ctx context.Context, db DBTX, key string) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("deleting value %q: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting value %q: %w", key, err)
	}
	return n > 0, nil
}

// AppendChange records c in the change feed and returns its sequence number.
// Seq is assigned by the database; At defaults to the current time.
func AppendChange(ctx context.Context, db DBTX, c KVChange) (int64, error) {
	if c.At.IsZero() {
		c.At = time.Now()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO kv_changes (key, old_value, new_value, removed, origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Key, c.OldValue, c.NewValue, c.Removed, c.Origin, c.At.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("recording change of %q: %w", c.Key, err)
	}
	return result.LastInsertId()
}

// ChangesSince returns the feed entries after seq, oldest first.
func ChangesSince(ctx context.Context, db DBTX, seq int64) ([]KVChange, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT seq, key, old_value, new_value, removed, origin, created_at
		 FROM kv_changes WHERE seq > ? ORDER BY seq`, seq)
	if err != nil {
		return nil, fmt.Errorf("listing changes: %w", err)
	}
	defer rows.Close()

	var changes []KVChange
	for rows.Next() {
		var c KVChange
		var at int64
		if err := rows.Scan(&c.Seq, &c.Key, &c.OldValue, &c.NewValue, &c.Removed, &c.Origin, &at); err != nil {
			return nil, fmt.Errorf("scanning change: %w", err)
		}
		c.At = time.UnixMilli(at).UTC()
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// LastChangeSeq returns the newest sequence number in the feed, or 0.
func LastChangeSeq(ctx context.Context, db DBTX) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM kv_changes`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("reading last change: %w", err)
	}
	return seq, nil
}

// PruneChanges deletes feed entries recorded before t.
func PruneChanges(ctx context.Context, db DBTX, t time.Time) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv_changes WHERE created_at < ?`, t.UnixMilli()); err != nil {
		return fmt.Errorf("pruning changes: %w", err)
	}
	return nil
}
