package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetAppState returns the stored state blob, or nil if nothing has been stored yet.
func GetAppState(ctx context.Context, db *sql.DB) (json.RawMessage, error) {
	var body string
	err := db.QueryRowContext(ctx, `SELECT body FROM app_state WHERE id = 1`).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting app state: %w", err)
	}
	return json.RawMessage(body), nil
}

// PutAppState replaces the stored state blob.
func PutAppState(ctx context.Context, db *sql.DB, body json.RawMessage) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO app_state (id, body, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		string(body), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storing app state: %w", err)
	}
	return nil
}

// DeleteAppState removes the stored state blob. Deleting nothing is not an error.
func DeleteAppState(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM app_state WHERE id = 1`); err != nil {
		return fmt.Errorf("deleting app state: %w", err)
	}
	return nil
}
