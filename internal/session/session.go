package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Session is a server-side record keyed by the HMAC of an opaque token.
// The raw token only ever lives in the user's cookie.
type Session struct {
	ID        string
	UserID    int64
	CSRFToken string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store is the persistence backing for sessions. Implementations only deal
// in token hashes; expiry policy lives in the Manager.
type Store interface {
	Insert(ctx context.Context, s Session, tokenHash string) error
	GetByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	ExtendByTokenHash(ctx context.Context, tokenHash string, expiresAt time.Time) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteAllForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
}

func NewManager(store Store, secret string, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create mints a fresh session for the user and returns the raw token to be
// set as a cookie. The store only ever sees the HMAC of that token.
func (m *Manager) Create(ctx context.Context, userID int64) (string, Session, error) {
	raw, err := newToken()
	if err != nil {
		return "", Session{}, err
	}

	csrf, err := newToken()
	if err != nil {
		return "", Session{}, err
	}

	now := time.Now().UTC()

	s := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CSRFToken: csrf,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	if err := m.store.Insert(ctx, s, m.HashToken(raw)); err != nil {
		return "", Session{}, err
	}

	return raw, s, nil
}

// Resolve maps a raw cookie token back to its session. Expiry is checked on
// every call; an expired row is deleted on sight and reported as missing.
func (m *Manager) Resolve(ctx context.Context, raw string) (Session, error) {
	if raw == "" {
		return Session{}, ErrNotFound
	}

	hash := m.HashToken(raw)

	s, err := m.store.GetByTokenHash(ctx, hash)
	if err != nil {
		return Session{}, err
	}

	if time.Now().UTC().After(s.ExpiresAt) {
		_ = m.store.DeleteByTokenHash(ctx, hash)
		return Session{}, ErrNotFound
	}

	return s, nil
}

// Extend pushes the session's expiry out by the configured TTL (sliding
// expiry). Concurrent extensions race benignly; last write wins.
func (m *Manager) Extend(ctx context.Context, raw string) (time.Time, error) {
	expiresAt := time.Now().UTC().Add(m.ttl)

	if err := m.store.ExtendByTokenHash(ctx, m.HashToken(raw), expiresAt); err != nil {
		return time.Time{}, err
	}

	return expiresAt, nil
}

// Destroy removes the session. Destroying an already-gone session is not an
// error.
func (m *Manager) Destroy(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}

	err := m.store.DeleteByTokenHash(ctx, m.HashToken(raw))
	if errors.Is(err, ErrNotFound) {
		return nil
	}

	return err
}

// DestroyAllForUser drops every session the user owns. Used on password
// change so stolen sessions stop working.
func (m *Manager) DestroyAllForUser(ctx context.Context, userID int64) error {
	return m.store.DeleteAllForUser(ctx, userID)
}

// Sweep deletes expired rows. Purely a space reclaim; resolution is correct
// without it.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx)
}

// HashToken is a deterministic HMAC-SHA256 of the raw token, peppered with
// the server secret. A leaked sessions table cannot be replayed without it.
func (m *Manager) HashToken(raw string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

// newToken returns 32 bytes of CSPRNG output, base64url-encoded for cookie
// transport. Well above the 128-bit guessing floor.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
