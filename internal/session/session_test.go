package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory Store keyed by token hash.
type fakeStore struct {
	mu   sync.Mutex
	rows map[string]Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]Session)}
}

func (f *fakeStore) Insert(_ context.Context, s Session, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[tokenHash] = s
	return nil
}

func (f *fakeStore) GetByTokenHash(_ context.Context, tokenHash string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[tokenHash]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) ExtendByTokenHash(_ context.Context, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[tokenHash]
	if !ok {
		return ErrNotFound
	}
	s.ExpiresAt = expiresAt
	f.rows[tokenHash] = s
	return nil
}

func (f *fakeStore) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[tokenHash]; !ok {
		return ErrNotFound
	}
	delete(f.rows, tokenHash)
	return nil
}

func (f *fakeStore) DeleteAllForUser(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, s := range f.rows {
		if s.UserID == userID {
			delete(f.rows, k)
		}
	}
	return nil
}

func (f *fakeStore) DeleteExpired(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for k, s := range f.rows {
		if now.After(s.ExpiresAt) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func newTestManager(ttl time.Duration) (*Manager, *fakeStore) {
	store := newFakeStore()
	return NewManager(store, "test-secret", ttl), store
}

func TestCreateAndResolve(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(time.Hour)

	raw, created, err := m.Create(ctx, 42)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(raw) != 43 { // 32 bytes, base64url without padding
		t.Errorf("raw token length = %d, want 43", len(raw))
	}
	if created.CSRFToken == "" || created.CSRFToken == raw {
		t.Error("csrf token missing or equal to the session token")
	}

	got, err := m.Resolve(ctx, raw)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.UserID != 42 {
		t.Errorf("UserID = %d, want 42", got.UserID)
	}
	if got.CSRFToken != created.CSRFToken {
		t.Error("csrf token changed between create and resolve")
	}
}

func TestTokensAreUnique(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(time.Hour)

	seen := make(map[string]bool)
	for range 50 {
		raw, _, err := m.Create(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if seen[raw] {
			t.Fatal("duplicate token generated")
		}
		seen[raw] = true
	}
}

func TestResolveUnknownToken(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(time.Hour)

	if _, err := m.Resolve(ctx, "no-such-token"); err != ErrNotFound {
		t.Errorf("Resolve(unknown) err = %v, want ErrNotFound", err)
	}
	if _, err := m.Resolve(ctx, ""); err != ErrNotFound {
		t.Errorf("Resolve(empty) err = %v, want ErrNotFound", err)
	}
}

func TestExpiredSessionIsInertAndPurged(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(-time.Minute) // already expired at creation

	raw, _, err := m.Create(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Resolve(ctx, raw); err != ErrNotFound {
		t.Fatalf("Resolve(expired) err = %v, want ErrNotFound", err)
	}

	// The expired row must have been lazily deleted by the resolve.
	if _, err := store.GetByTokenHash(ctx, m.HashToken(raw)); err != ErrNotFound {
		t.Error("expired row still present after resolve")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(time.Hour)

	raw, _, err := m.Create(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Destroy(ctx, raw); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := m.Destroy(ctx, raw); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
	if err := m.Destroy(ctx, ""); err != nil {
		t.Fatalf("Destroy(empty): %v", err)
	}

	if _, err := m.Resolve(ctx, raw); err != ErrNotFound {
		t.Error("destroyed token still resolves")
	}
}

func TestDestroyAllForUser(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(time.Hour)

	rawA1, _, _ := m.Create(ctx, 1)
	rawA2, _, _ := m.Create(ctx, 1)
	rawB, _, _ := m.Create(ctx, 2)

	if err := m.DestroyAllForUser(ctx, 1); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Resolve(ctx, rawA1); err != ErrNotFound {
		t.Error("user 1 session survived DestroyAllForUser")
	}
	if _, err := m.Resolve(ctx, rawA2); err != ErrNotFound {
		t.Error("user 1 session survived DestroyAllForUser")
	}
	if _, err := m.Resolve(ctx, rawB); err != nil {
		t.Error("user 2 session should be unaffected")
	}
}

func TestExtendSlidesExpiry(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(time.Hour)

	raw, created, err := m.Create(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}

	newExpiry, err := m.Extend(ctx, raw)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if !newExpiry.After(created.ExpiresAt.Add(-time.Second)) {
		t.Errorf("extended expiry %v not after original %v", newExpiry, created.ExpiresAt)
	}

	got, _ := store.GetByTokenHash(ctx, m.HashToken(raw))
	if !got.ExpiresAt.Equal(newExpiry) {
		t.Error("store did not record the extended expiry")
	}
}

func TestConcurrentExtend(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(time.Hour)

	raw, _, err := m.Create(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Extend(ctx, raw); err != nil {
				t.Errorf("concurrent Extend: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := m.Resolve(ctx, raw); err != nil {
		t.Fatalf("session corrupted by concurrent extends: %v", err)
	}
}

func TestHashTokenDeterministicAndPeppered(t *testing.T) {
	m1 := NewManager(newFakeStore(), "secret-a", time.Hour)
	m2 := NewManager(newFakeStore(), "secret-b", time.Hour)

	if m1.HashToken("tok") != m1.HashToken("tok") {
		t.Error("HashToken not deterministic")
	}
	if m1.HashToken("tok") == m2.HashToken("tok") {
		t.Error("HashToken ignores the server secret")
	}
	if m1.HashToken("tok") == "tok" {
		t.Error("HashToken returned the raw token")
	}
}
