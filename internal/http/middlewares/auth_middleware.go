package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/calder-labs/webbase/internal/actorctx"
	"github.com/calder-labs/webbase/internal/domain/user"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/calder-labs/webbase/internal/session"
	"github.com/gin-gonic/gin"
)

// Surface selects how an unauthenticated request is rejected: browsers get
// a redirect to the login page, API clients get a 401.
type Surface int

const (
	SurfaceAPI Surface = iota
	SurfaceHTML
)

const loginPath = "/login"

// Small interfaces so tests can fake the session and user stores.

type SessionResolver interface {
	Resolve(ctx context.Context, raw string) (session.Session, error)
	Extend(ctx context.Context, raw string) (time.Time, error)
	Destroy(ctx context.Context, raw string) error
	TTL() time.Duration
}

type UserLoader interface {
	GetByID(ctx context.Context, id int64) (user.User, error)
}

type AuthMiddleware struct {
	sessions     SessionResolver
	users        UserLoader
	cookieName   string
	cookieSecure bool
}

func NewAuthMiddleware(sessions SessionResolver, users UserLoader, cookieName string, cookieSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		sessions:     sessions,
		users:        users,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
	}
}

// RequireAuth resolves the session cookie to an active user and attaches the
// identity to the request context. Every authentication failure is rejected
// the same way; the client cannot tell a missing session from a deactivated
// account. Storage failures are not authentication failures and answer 5xx.
func (m *AuthMiddleware) RequireAuth(surface Surface) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw, err := c.Cookie(m.cookieName)
		if err != nil || raw == "" {
			m.reject(c, surface)
			return
		}

		s, err := m.sessions.Resolve(ctx, raw)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				m.fail(c, surface, err)
				return
			}

			m.clearCookie(c)
			m.reject(c, surface)
			return
		}

		u, err := m.users.GetByID(ctx, s.UserID)
		if err != nil {
			// Only a confirmed-missing user row invalidates the session.
			// A transient store failure must not log anyone out.
			if !errors.Is(err, postgres.ErrUserNotFound) {
				m.fail(c, surface, err)
				return
			}

			_ = m.sessions.Destroy(ctx, raw)
			m.clearCookie(c)
			m.reject(c, surface)
			return
		}

		if !u.IsActive {
			// Deactivated account: destroy the session so later requests
			// short-circuit at the cookie check.
			_ = m.sessions.Destroy(ctx, raw)
			m.clearCookie(c)
			m.reject(c, surface)
			return
		}

		m.attach(c, u.Identity(), s)

		// Sliding expiry. A failed extension is not fatal; the session
		// simply keeps its previous deadline.
		if expiresAt, err := m.sessions.Extend(ctx, raw); err == nil {
			m.refreshCookie(c, raw, expiresAt)
		}

		c.Next()
	}
}

// OptionalAuth attaches an identity when a valid session is present and
// proceeds anonymously otherwise. Public pages use it to render the
// logged-in chrome.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw, err := c.Cookie(m.cookieName)
		if err != nil || raw == "" {
			c.Next()
			return
		}

		s, err := m.sessions.Resolve(ctx, raw)
		if err != nil {
			c.Next()
			return
		}

		u, err := m.users.GetByID(ctx, s.UserID)
		if err != nil {
			// Public pages render anonymously either way; only drop the
			// session when the user row is confirmed gone.
			if errors.Is(err, postgres.ErrUserNotFound) {
				_ = m.sessions.Destroy(ctx, raw)
				m.clearCookie(c)
			}

			c.Next()
			return
		}

		if !u.IsActive {
			_ = m.sessions.Destroy(ctx, raw)
			m.clearCookie(c)
			c.Next()
			return
		}

		m.attach(c, u.Identity(), s)
		c.Next()
	}
}

func (m *AuthMiddleware) attach(c *gin.Context, id user.Identity, s session.Session) {
	c.Set(CtxIdentity, id)
	c.Set(CtxCSRFToken, s.CSRFToken)
	c.Set(CtxSessionID, s.ID)

	c.Request = c.Request.WithContext(actorctx.WithIdentity(c.Request.Context(), id))
}

func (m *AuthMiddleware) reject(c *gin.Context, surface Surface) {
	if surface == SurfaceHTML {
		// Carry the requested path so the login form can send the
		// user back after they authenticate.
		target := loginPath
		if uri := c.Request.URL.RequestURI(); uri != "" && uri != "/" && uri != loginPath {
			target = loginPath + "?next=" + url.QueryEscape(uri)
		}

		c.Redirect(http.StatusFound, target)
		c.Abort()
		return
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    "unauthorized",
			"message": "Authentication required",
		},
	})
}

// fail answers a storage failure without touching the session or the
// cookie; the client keeps its credentials and can retry.
func (m *AuthMiddleware) fail(c *gin.Context, surface Surface, err error) {
	slog.Default().ErrorContext(c.Request.Context(), "auth: resolving identity", "error", err)

	if surface == SurfaceHTML {
		c.String(http.StatusInternalServerError, "Something went wrong")
		c.Abort()
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "internal_error",
			"message": "Something went wrong",
		},
	})
}

func (m *AuthMiddleware) refreshCookie(c *gin.Context, raw string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, raw, maxAge, "/", "", m.cookieSecure, true)
}

func (m *AuthMiddleware) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.cookieSecure, true)
}

// Helpers so handlers never touch the magic keys.

func IdentityFromContext(c *gin.Context) (user.Identity, bool) {
	v, ok := c.Get(CtxIdentity)
	if !ok {
		return user.Identity{}, false
	}

	id, ok := v.(user.Identity)
	return id, ok
}

func CSRFTokenFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxCSRFToken)
	if !ok {
		return "", false
	}

	t, ok := v.(string)
	return t, ok && t != ""
}
