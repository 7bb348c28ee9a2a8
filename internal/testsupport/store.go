package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/Duelion/homebox-companion-sub001/internal/session"
)

// MustOpenStore opens a session.Store in a temp directory and registers cleanup.
func MustOpenStore(t testing.TB) *session.Store {
	t.Helper()

	store, err := session.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
