package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
)

// Components bundles the storage opened from configuration.
type Components struct {
	Store     *Store
	KV        *SQLiteKV
	Blobs     BlobStore
	Persister *Persister
}

// OpenFromConfig opens the session database, selects the image backend and
// starts the snapshot writer.
func OpenFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session: config is required")
	}
	store, err := Open(cfg.Session.Path)
	if err != nil {
		return nil, err
	}

	var blobs BlobStore
	switch cfg.Session.BlobBackend {
	case config.BlobBackendS3:
		s3, err := NewS3Blobs(cfg.Session.S3)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		blobs = s3
	default:
		blobs = store.Blobs()
	}

	kv := store.KV(cfg.Session.MaxSnapshotBytes)
	persister := NewPersister(kv, blobs,
		WithLogger(logger),
		WithQuota(cfg.Session.MaxSnapshotBytes),
	)
	return &Components{Store: store, KV: kv, Blobs: blobs, Persister: persister}, nil
}

// Close drains pending snapshot writes and closes the database.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	if c.Persister != nil {
		c.Persister.Close()
	}
	return c.Store.Close()
}
