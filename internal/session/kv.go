package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrQuotaExceeded is returned when a write would push storage past its byte quota.
var ErrQuotaExceeded = errors.New("session storage quota exceeded")

// KV is a small durable byte store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SQLiteKV stores values in the kv table. A positive quota caps the total
// bytes across all keys.
type SQLiteKV struct {
	db    *sql.DB
	quota int64
}

// KV returns the store's key/value table with the given byte quota.
func (s *Store) KV(quota int64) *SQLiteKV {
	return &SQLiteKV{db: s.db, quota: quota}
}

// Get returns the value for key.
func (kv *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := kv.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key, failing with ErrQuotaExceeded when the quota
// would be exceeded. A failed put leaves the previous value in place.
func (kv *SQLiteKV) Put(ctx context.Context, key string, value []byte) error {
	tx, err := kv.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin kv tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if kv.quota > 0 {
		var others int64
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv WHERE key <> ?", key,
		).Scan(&others); err != nil {
			return fmt.Errorf("measure kv usage: %w", err)
		}
		if others+int64(len(value)) > kv.quota {
			return fmt.Errorf("%w: %d bytes needed, quota %d", ErrQuotaExceeded, others+int64(len(value)), kv.quota)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit kv: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key succeeds.
func (kv *SQLiteKV) Delete(ctx context.Context, key string) error {
	if _, err := kv.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
