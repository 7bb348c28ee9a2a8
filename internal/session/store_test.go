package session_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Duelion/homebox-companion-sub001/internal/session"
	"github.com/Duelion/homebox-companion-sub001/internal/testsupport"
)

func TestOpenReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	store, err := session.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.KV(0).Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := session.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	value, ok, err := reopened.KV(0).Get(context.Background(), "k")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("expected persisted value, got %q ok=%v err=%v", value, ok, err)
	}
}

func TestOpenRejectsNewerLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	store, err := session.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("raw open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := session.Open(path); !errors.Is(err, session.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := session.Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestKVQuota(t *testing.T) {
	ctx := context.Background()
	kv := testsupport.MustOpenStore(t).KV(10)

	if err := kv.Put(ctx, "a", []byte("12345")); err != nil {
		t.Fatalf("put a: %v", err)
	}
	// Overwriting a key only counts the new value.
	if err := kv.Put(ctx, "a", []byte("1234567")); err != nil {
		t.Fatalf("overwrite a: %v", err)
	}
	err := kv.Put(ctx, "b", []byte("12345"))
	if !errors.Is(err, session.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "b"); ok {
		t.Fatal("rejected value must not be stored")
	}
	value, _, _ := kv.Get(ctx, "a")
	if string(value) != "1234567" {
		t.Fatalf("existing value changed: %q", value)
	}

	if err := kv.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := kv.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "a"); ok {
		t.Fatal("expected key removed")
	}
}

func TestSQLiteBlobsPrune(t *testing.T) {
	ctx := context.Background()
	blobs := testsupport.MustOpenStore(t).Blobs()

	for _, hash := range []string{"h1", "h2", "h3"} {
		if err := blobs.Put(ctx, hash, []byte(hash)); err != nil {
			t.Fatalf("put %s: %v", hash, err)
		}
	}
	// Re-putting an existing hash is a no-op.
	if err := blobs.Put(ctx, "h1", []byte("h1")); err != nil {
		t.Fatalf("re-put: %v", err)
	}

	removed, err := blobs.Prune(ctx, map[string]struct{}{"h2": {}})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if ok, _ := blobs.Has(ctx, "h2"); !ok {
		t.Fatal("kept blob missing")
	}
	if _, err := blobs.Get(ctx, "h1"); !errors.Is(err, session.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestAcquireLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lock")
	first, err := session.AcquireLock(path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := session.AcquireLock(path); !errors.Is(err, session.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	second, err := session.AcquireLock(path)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	_ = second.Release()
}
