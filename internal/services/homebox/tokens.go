package homebox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/services"
)

const (
	tokenCacheKey      = "homebox.token"
	tokenRefreshLeeway = time.Minute
)

// TokenCache persists the token between runs. It is satisfied by the session KV.
type TokenCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Credentials allow the store to log in again when the token lapses.
type Credentials struct {
	Username     string
	Password     string
	StayLoggedIn bool
}

func (c Credentials) usable() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

type tokenState struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	BaseURL   string    `json:"base_url"`
}

func (s tokenState) valid(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || s.ExpiresAt.Sub(now) > tokenRefreshLeeway
}

// TokenStore hands out a current bearer token.
type TokenStore struct {
	client *Client
	cache  TokenCache
	creds  Credentials
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	state  tokenState
	loaded bool
}

// NewTokenStore builds a TokenStore. cache may be nil.
func NewTokenStore(client *Client, cache TokenCache, creds Credentials, logger *slog.Logger) *TokenStore {
	return &TokenStore{
		client: client,
		cache:  cache,
		creds:  creds,
		logger: logging.NewComponentLogger(logger, "homebox-auth"),
		now:    time.Now,
	}
}

// Token returns a cached token while it is valid and otherwise logs in with
// the configured credentials. Without credentials an expired token yields
// services.ErrUnauthorized.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.loadLocked(ctx)
	}
	if s.state.valid(s.now()) {
		return s.state.Token, nil
	}
	if !s.creds.usable() {
		return "", services.Wrap(services.ErrUnauthorized, "homebox", "token", "session expired; log in again", nil)
	}
	return s.loginLocked(ctx)
}

// Login forces a fresh login and caches the result.
func (s *TokenStore) Login(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.creds.usable() {
		return "", services.Wrap(services.ErrConfiguration, "homebox", "login", "username and password required", nil)
	}
	return s.loginLocked(ctx)
}

// Set stores an externally obtained session.
func (s *TokenStore) Set(ctx context.Context, session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = tokenState{Token: session.Token, ExpiresAt: session.ExpiresAt, BaseURL: s.client.BaseURL()}
	s.loaded = true
	s.persistLocked(ctx)
}

// Invalidate drops the cached token after the server rejected it.
func (s *TokenStore) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = tokenState{}
	s.loaded = true
	if s.cache != nil {
		if err := s.cache.Delete(ctx, tokenCacheKey); err != nil {
			logging.WarnWithContext(s.logger, "token cache delete failed", "token_cache_delete_failed", logging.Error(err))
		}
	}
}

// ExpiresAt reports the cached token's expiry, zero when unknown.
func (s *TokenStore) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ExpiresAt
}

func (s *TokenStore) loginLocked(ctx context.Context) (string, error) {
	session, err := s.client.Login(ctx, s.creds.Username, s.creds.Password, s.creds.StayLoggedIn)
	if err != nil {
		return "", err
	}
	s.state = tokenState{Token: session.Token, ExpiresAt: session.ExpiresAt, BaseURL: s.client.BaseURL()}
	s.loaded = true
	s.persistLocked(ctx)
	return session.Token, nil
}

func (s *TokenStore) loadLocked(ctx context.Context) {
	s.loaded = true
	if s.cache == nil {
		return
	}
	data, ok, err := s.cache.Get(ctx, tokenCacheKey)
	if err != nil {
		logging.WarnWithContext(s.logger, "token cache read failed", "token_cache_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a fresh login will be attempted"),
		)
		return
	}
	if !ok {
		return
	}
	var state tokenState
	if err := json.Unmarshal(data, &state); err != nil {
		logging.WarnWithContext(s.logger, "token cache corrupt", "token_cache_corrupt", logging.Error(err))
		return
	}
	// A token minted by another server is useless here.
	if state.BaseURL != "" && state.BaseURL != s.client.BaseURL() {
		return
	}
	s.state = state
}

func (s *TokenStore) persistLocked(ctx context.Context) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(s.state)
	if err != nil {
		s.logger.Error("encode token state", logging.Error(err))
		return
	}
	if err := s.cache.Put(ctx, tokenCacheKey, data); err != nil {
		logging.WarnWithContext(s.logger, "token cache write failed", "token_cache_write_failed",
			logging.Error(fmt.Errorf("persist token: %w", err)),
			logging.String(logging.FieldImpact, "next run will need to log in again"),
		)
	}
}
