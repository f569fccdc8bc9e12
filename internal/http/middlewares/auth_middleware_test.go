package middlewares_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/calder-labs/webbase/internal/domain/user"
	"github.com/calder-labs/webbase/internal/http/middlewares"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/calder-labs/webbase/internal/session"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const cookieName = "wb_session"

type fakeSessions struct {
	resolveFn func(ctx context.Context, raw string) (session.Session, error)
	destroyed []string
	extended  []string
}

func (f *fakeSessions) Resolve(ctx context.Context, raw string) (session.Session, error) {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, raw)
	}
	return session.Session{}, session.ErrNotFound
}

func (f *fakeSessions) Extend(_ context.Context, raw string) (time.Time, error) {
	f.extended = append(f.extended, raw)
	return time.Now().Add(time.Hour), nil
}

func (f *fakeSessions) Destroy(_ context.Context, raw string) error {
	f.destroyed = append(f.destroyed, raw)
	return nil
}

func (f *fakeSessions) TTL() time.Duration { return time.Hour }

type fakeUsers struct {
	getFn func(ctx context.Context, id int64) (user.User, error)
}

func (f *fakeUsers) GetByID(ctx context.Context, id int64) (user.User, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return user.User{}, nil
}

func activeUser(id int64) user.User {
	return user.User{ID: id, Username: "alice", Email: "alice@example.com", IsActive: true}
}

func validSession(userID int64) session.Session {
	return session.Session{
		ID:        "sess-1",
		UserID:    userID,
		CSRFToken: "csrf-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func protectedRouter(m *middlewares.AuthMiddleware, surface middlewares.Surface) *gin.Engine {
	r := gin.New()

	r.GET("/protected", m.RequireAuth(surface), func(c *gin.Context) {
		id, _ := middlewares.IdentityFromContext(c)
		c.JSON(http.StatusOK, gin.H{"userId": id.ID})
	})

	return r
}

func TestRequireAuthAPI(t *testing.T) {
	tests := []struct {
		name        string
		cookie      string
		sessions    *fakeSessions
		users       *fakeUsers
		wantStatus  int
		wantDestroy bool
	}{
		{
			name:       "no cookie",
			cookie:     "",
			sessions:   &fakeSessions{},
			users:      &fakeUsers{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "unknown token",
			cookie: "bogus",
			sessions: &fakeSessions{
				resolveFn: func(_ context.Context, _ string) (session.Session, error) {
					return session.Session{}, session.ErrNotFound
				},
			},
			users:      &fakeUsers{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "valid session active user",
			cookie: "good-token",
			sessions: &fakeSessions{
				resolveFn: func(_ context.Context, _ string) (session.Session, error) {
					return validSession(7), nil
				},
			},
			users: &fakeUsers{
				getFn: func(_ context.Context, id int64) (user.User, error) {
					return activeUser(id), nil
				},
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "deactivated user",
			cookie: "good-token",
			sessions: &fakeSessions{
				resolveFn: func(_ context.Context, _ string) (session.Session, error) {
					return validSession(7), nil
				},
			},
			users: &fakeUsers{
				getFn: func(_ context.Context, id int64) (user.User, error) {
					u := activeUser(id)
					u.IsActive = false
					return u, nil
				},
			},
			wantStatus:  http.StatusUnauthorized,
			wantDestroy: true,
		},
		{
			name:   "user row gone",
			cookie: "good-token",
			sessions: &fakeSessions{
				resolveFn: func(_ context.Context, _ string) (session.Session, error) {
					return validSession(7), nil
				},
			},
			users: &fakeUsers{
				getFn: func(_ context.Context, _ int64) (user.User, error) {
					return user.User{}, postgres.ErrUserNotFound
				},
			},
			wantStatus:  http.StatusUnauthorized,
			wantDestroy: true,
		},
		{
			// A flaky database must not log anyone out.
			name:   "user lookup fails",
			cookie: "good-token",
			sessions: &fakeSessions{
				resolveFn: func(_ context.Context, _ string) (session.Session, error) {
					return validSession(7), nil
				},
			},
			users: &fakeUsers{
				getFn: func(_ context.Context, _ int64) (user.User, error) {
					return user.User{}, errors.New("connection refused")
				},
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:   "session lookup fails",
			cookie: "good-token",
			sessions: &fakeSessions{
				resolveFn: func(_ context.Context, _ string) (session.Session, error) {
					return session.Session{}, errors.New("connection refused")
				},
			},
			users:      &fakeUsers{},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := middlewares.NewAuthMiddleware(tt.sessions, tt.users, cookieName, false)
			r := protectedRouter(m, middlewares.SurfaceAPI)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: cookieName, Value: tt.cookie})
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			if tt.wantDestroy && len(tt.sessions.destroyed) == 0 {
				t.Error("expected the session to be destroyed as a side effect")
			}
			if !tt.wantDestroy && len(tt.sessions.destroyed) != 0 {
				t.Error("session destroyed unexpectedly")
			}
		})
	}
}

func TestRequireAuthHTMLRedirectsToLogin(t *testing.T) {
	m := middlewares.NewAuthMiddleware(&fakeSessions{}, &fakeUsers{}, cookieName, false)
	r := protectedRouter(m, middlewares.SurfaceHTML)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?next=%2Fprotected" {
		t.Errorf("Location = %q, want /login?next=%%2Fprotected", loc)
	}
}

func TestRequireAuthExtendsSession(t *testing.T) {
	sessions := &fakeSessions{
		resolveFn: func(_ context.Context, _ string) (session.Session, error) {
			return validSession(3), nil
		},
	}
	users := &fakeUsers{
		getFn: func(_ context.Context, id int64) (user.User, error) {
			return activeUser(id), nil
		},
	}

	m := middlewares.NewAuthMiddleware(sessions, users, cookieName, false)
	r := protectedRouter(m, middlewares.SurfaceAPI)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "tok"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if len(sessions.extended) != 1 {
		t.Errorf("Extend called %d times, want 1", len(sessions.extended))
	}
}

func TestOptionalAuthProceedsAnonymously(t *testing.T) {
	m := middlewares.NewAuthMiddleware(&fakeSessions{}, &fakeUsers{}, cookieName, false)

	r := gin.New()
	r.GET("/", m.OptionalAuth(), func(c *gin.Context) {
		_, authed := middlewares.IdentityFromContext(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": authed})
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != `{"authenticated":false}` {
		t.Errorf("body = %s", got)
	}
}

func TestOptionalAuthKeepsSessionOnStorageError(t *testing.T) {
	sessions := &fakeSessions{
		resolveFn: func(_ context.Context, _ string) (session.Session, error) {
			return validSession(7), nil
		},
	}
	users := &fakeUsers{
		getFn: func(_ context.Context, _ int64) (user.User, error) {
			return user.User{}, errors.New("connection refused")
		},
	}

	m := middlewares.NewAuthMiddleware(sessions, users, cookieName, false)

	r := gin.New()
	r.GET("/", m.OptionalAuth(), func(c *gin.Context) {
		_, authed := middlewares.IdentityFromContext(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": authed})
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "tok"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(sessions.destroyed) != 0 {
		t.Error("session destroyed on a transient storage error")
	}
}
