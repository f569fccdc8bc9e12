package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/calder-labs/webbase/internal/config"
	"github.com/calder-labs/webbase/internal/domain/user"
	"github.com/calder-labs/webbase/internal/observability"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/calder-labs/webbase/internal/security"
	"github.com/calder-labs/webbase/internal/session"
	"github.com/gin-gonic/gin"
)

var errInvalidCredentials = errors.New("invalid credentials")

type CredentialReader interface {
	GetByIdentifier(ctx context.Context, identifier string) (user.User, error)
	TouchLastLogin(ctx context.Context, id int64) error
}

type SessionWriter interface {
	Create(ctx context.Context, userID int64) (string, session.Session, error)
	Destroy(ctx context.Context, raw string) error
	TTL() time.Duration
}

type AuthHandler struct {
	users    CredentialReader
	sessions SessionWriter
	cfg      config.Config
	prom     *observability.Prom
}

func NewAuthHandler(users CredentialReader, sessions SessionWriter, cfg config.Config, prom *observability.Prom) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		prom:     prom,
	}
}

type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginJSON authenticates an API client and sets the session cookie.
// Every failure mode answers the same way so a caller cannot probe for
// which usernames exist.
func (h *AuthHandler) LoginJSON(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	u, err := h.authenticate(cctx, req.Identifier, req.Password)

	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			h.countLogin("failure")
			RespondUnauthorized(ctx, "invalid_credentials", "Invalid username or password.")
			return
		}

		h.countLogin("error")
		RespondInternal(ctx, "Could not log in")
		return
	}

	csrf, err := h.openSession(ctx, cctx, u.ID)

	if err != nil {
		h.countLogin("error")
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.countLogin("success")

	ctx.JSON(http.StatusOK, gin.H{
		"user":      u.Public(),
		"csrfToken": csrf,
	})
}

// LoginForm is the browser-facing counterpart: form fields instead of
// JSON, a re-rendered login page instead of a 401.
func (h *AuthHandler) LoginForm(ctx *gin.Context) {
	identifier := ctx.PostForm("username")
	password := ctx.PostForm("password")

	if identifier == "" || password == "" {
		h.countLogin("failure")
		h.renderLoginError(ctx)
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	u, err := h.authenticate(cctx, identifier, password)

	if err != nil {
		h.countLogin("failure")
		h.renderLoginError(ctx)
		return
	}

	if _, err := h.openSession(ctx, cctx, u.ID); err != nil {
		h.countLogin("error")
		ctx.HTML(http.StatusInternalServerError, "login.html", gin.H{
			"error": "Something went wrong. Please try again.",
		})
		return
	}

	h.countLogin("success")

	// Relative targets only; anything absolute could bounce the user off-site.
	next := ctx.PostForm("next")
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/"
	}

	ctx.Redirect(http.StatusFound, next)
}

// Logout destroys the current session and clears the cookie. Safe to call
// without a session; logging out twice is not an error.
func (h *AuthHandler) Logout(surface func(ctx *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, err := ctx.Cookie(h.cfg.SessionCookieName)

		if err == nil && raw != "" {
			cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)

			if err := h.sessions.Destroy(cctx, raw); err == nil && h.prom != nil {
				h.prom.SessionsDestroyed.Inc()
			}

			cancel()
		}

		h.clearCookie(ctx)
		surface(ctx)
	}
}

func LogoutAPIResponse(ctx *gin.Context) {
	ctx.Status(http.StatusNoContent)
}

func LogoutHTMLResponse(ctx *gin.Context) {
	ctx.Redirect(http.StatusFound, "/login")
}

// authenticate resolves the identifier and checks the password, taking the
// same amount of work whether or not the account exists.
func (h *AuthHandler) authenticate(ctx context.Context, identifier, password string) (user.User, error) {
	u, err := h.users.GetByIdentifier(ctx, identifier)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			security.DummyVerify(password)
			return user.User{}, errInvalidCredentials
		}

		return user.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if u.PasswordHash == nil {
		// Account exists but no password has ever been set for it.
		security.DummyVerify(password)
		return user.User{}, errInvalidCredentials
	}

	if !security.VerifyPassword(password, *u.PasswordHash) {
		return user.User{}, errInvalidCredentials
	}

	if !u.IsActive {
		return user.User{}, errInvalidCredentials
	}

	return u, nil
}

func (h *AuthHandler) openSession(ctx *gin.Context, cctx context.Context, userID int64) (string, error) {
	raw, s, err := h.sessions.Create(cctx, userID)

	if err != nil {
		return "", err
	}

	// last_login is best effort; a failed touch should not fail the login.
	_ = h.users.TouchLastLogin(cctx, userID)

	h.setCookie(ctx, raw)

	return s.CSRFToken, nil
}

func (h *AuthHandler) setCookie(ctx *gin.Context, raw string) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    raw,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(ctx *gin.Context) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) renderLoginError(ctx *gin.Context) {
	ctx.HTML(http.StatusUnauthorized, "login.html", gin.H{
		"error": "Invalid username or password.",
	})
}

func (h *AuthHandler) countLogin(outcome string) {
	if h.prom != nil {
		h.prom.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}
