package homebox

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/services"
)

type memoryCache struct {
	values map[string][]byte
}

func newMemoryCache() *memoryCache { return &memoryCache{values: map[string][]byte{}} }

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryCache) Put(_ context.Context, key string, value []byte) error {
	m.values[key] = value
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func TestTokenStoreUsesCachedToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})
	cache := newMemoryCache()
	state, _ := json.Marshal(tokenState{Token: "cached", ExpiresAt: time.Now().Add(time.Hour), BaseURL: client.BaseURL()})
	cache.values[tokenCacheKey] = state

	store := NewTokenStore(client, cache, Credentials{}, nil)
	token, err := store.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if token != "cached" {
		t.Fatalf("expected cached token, got %q", token)
	}
}

func TestTokenStoreExpiredWithoutCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})
	cache := newMemoryCache()
	state, _ := json.Marshal(tokenState{Token: "old", ExpiresAt: time.Now().Add(-time.Minute), BaseURL: client.BaseURL()})
	cache.values[tokenCacheKey] = state

	_, err := NewTokenStore(client, cache, Credentials{}, nil).Token(context.Background())
	if !services.IsAuthFailure(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestTokenStoreLogsInAndPersists(t *testing.T) {
	var logins atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		_, _ = w.Write([]byte(`{"token":"fresh","expiresAt":"` + time.Now().Add(2*time.Hour).UTC().Format(time.RFC3339) + `"}`))
	})
	cache := newMemoryCache()
	store := NewTokenStore(client, cache, Credentials{Username: "u", Password: "p"}, nil)

	for i := 0; i < 3; i++ {
		token, err := store.Token(context.Background())
		if err != nil || token != "fresh" {
			t.Fatalf("Token = %q, %v", token, err)
		}
	}
	if logins.Load() != 1 {
		t.Fatalf("expected a single login, got %d", logins.Load())
	}
	if _, ok := cache.values[tokenCacheKey]; !ok {
		t.Fatal("expected token persisted to cache")
	}

	store.Invalidate(context.Background())
	if _, ok := cache.values[tokenCacheKey]; ok {
		t.Fatal("expected cache entry removed")
	}
	if _, err := store.Token(context.Background()); err != nil {
		t.Fatalf("Token after invalidate: %v", err)
	}
	if logins.Load() != 2 {
		t.Fatalf("expected re-login after invalidate, got %d", logins.Load())
	}
}

func TestTokenStoreIgnoresTokenFromOtherServer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})
	cache := newMemoryCache()
	state, _ := json.Marshal(tokenState{Token: "other", ExpiresAt: time.Now().Add(time.Hour), BaseURL: "https://elsewhere/api/v1"})
	cache.values[tokenCacheKey] = state

	if _, err := NewTokenStore(client, cache, Credentials{}, nil).Token(context.Background()); !services.IsAuthFailure(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}
