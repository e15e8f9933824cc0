package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultBucket is the kv_store bucket used by the engine.
const DefaultBucket = "roomlight"

// SQLiteStore is a persistent Store backed by the kv_store table.
type SQLiteStore struct {
	db     *sql.DB
	bucket string
}

// NewSQLiteStore creates a store over one kv_store bucket.
func NewSQLiteStore(db *sql.DB, bucket string) *SQLiteStore {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &SQLiteStore{db: db, bucket: bucket}
}

// Load retrieves a value by key.
func (s *SQLiteStore) Load(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv_store
		WHERE bucket = ? AND key = ?
	`, s.bucket, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return value, true, nil
}

// Save stores a value, replacing any previous one.
func (s *SQLiteStore) Save(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Unix()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (bucket, key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, s.bucket, key, value, now, now)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_store WHERE bucket = ? AND key = ?
	`, s.bucket, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
