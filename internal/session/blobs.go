package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrBlobNotFound is returned when a blob is missing from the store.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds image bytes keyed by their SHA-256 hex digest.
type BlobStore interface {
	Has(ctx context.Context, hash string) (bool, error)
	Put(ctx context.Context, hash string, data []byte) error
	Get(ctx context.Context, hash string) ([]byte, error)
	// Prune deletes every blob whose hash is not in keep.
	Prune(ctx context.Context, keep map[string]struct{}) (int, error)
}

type sqliteBlobs struct {
	db *sql.DB
}

// Blobs returns the store's blob table.
func (s *Store) Blobs() BlobStore {
	return &sqliteBlobs{db: s.db}
}

func (b *sqliteBlobs) Has(ctx context.Context, hash string) (bool, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM blobs WHERE hash = ?", hash).Scan(&n); err != nil {
		return false, fmt.Errorf("check blob %s: %w", hash, err)
	}
	return n > 0, nil
}

func (b *sqliteBlobs) Put(ctx context.Context, hash string, data []byte) error {
	_, err := b.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO blobs (hash, data, size, created_at) VALUES (?, ?, ?, ?)",
		hash, data, len(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write blob %s: %w", hash, err)
	}
	return nil
}

func (b *sqliteBlobs) Get(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, "SELECT data FROM blobs WHERE hash = ?", hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", hash, err)
	}
	return data, nil
}

func (b *sqliteBlobs) Prune(ctx context.Context, keep map[string]struct{}) (int, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT hash FROM blobs")
	if err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}
	var stale []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan blob hash: %w", err)
		}
		if _, ok := keep[hash]; !ok {
			stale = append(stale, hash)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("close blob rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate blobs: %w", err)
	}
	for _, hash := range stale {
		if _, err := b.db.ExecContext(ctx, "DELETE FROM blobs WHERE hash = ?", hash); err != nil {
			return 0, fmt.Errorf("delete blob %s: %w", hash, err)
		}
	}
	return len(stale), nil
}
