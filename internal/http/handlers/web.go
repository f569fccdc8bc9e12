package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/calder-labs/webbase/internal/cache"
	"github.com/calder-labs/webbase/internal/config"
	"github.com/calder-labs/webbase/internal/domain/category"
	"github.com/calder-labs/webbase/internal/http/middlewares"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/calder-labs/webbase/internal/security"
	"github.com/gin-gonic/gin"
)

const categoriesCacheKey = "categories"

// WebHandler serves the server-rendered pages. It leans on the same stores
// as the JSON API; the only extra moving part is a short-lived category
// cache so the index does not hit the database on every page view.
type WebHandler struct {
	users      AccountStore
	categories CategoryStore
	catCache   *cache.Cache[[]category.Category]
	cfg        config.Config
}

func NewWebHandler(users AccountStore, categories CategoryStore, cfg config.Config) *WebHandler {
	return &WebHandler{
		users:      users,
		categories: categories,
		catCache:   cache.New[[]category.Category](5 * time.Second),
		cfg:        cfg,
	}
}

// Index is the authenticated home page.
func (h *WebHandler) Index(ctx *gin.Context) {
	id, _ := middlewares.IdentityFromContext(ctx)

	cats, err := h.cachedCategories()

	if err != nil {
		ctx.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"message": "Something went wrong.",
		})
		return
	}

	ctx.HTML(http.StatusOK, "index.html", gin.H{
		"username":   id.Username,
		"categories": cats,
		"csrfToken":  csrfOrEmpty(ctx),
	})
}

// Landing is the public page shown to anonymous visitors.
func (h *WebHandler) Landing(ctx *gin.Context) {
	if _, ok := middlewares.IdentityFromContext(ctx); ok {
		ctx.Redirect(http.StatusFound, "/")
		return
	}

	ctx.HTML(http.StatusOK, "landing.html", nil)
}

// LoginPage renders the form; a visitor who is already signed in is just
// sent home.
func (h *WebHandler) LoginPage(ctx *gin.Context) {
	if _, ok := middlewares.IdentityFromContext(ctx); ok {
		ctx.Redirect(http.StatusFound, "/")
		return
	}

	ctx.HTML(http.StatusOK, "login.html", gin.H{
		"next": ctx.Query("next"),
	})
}

func (h *WebHandler) Profile(ctx *gin.Context) {
	h.renderProfile(ctx, http.StatusOK, "", "")
}

// ProfileUpdate handles both forms on the profile page, dispatched on the
// "action" field: email update or password change.
func (h *WebHandler) ProfileUpdate(ctx *gin.Context) {
	id, ok := middlewares.IdentityFromContext(ctx)

	if !ok {
		ctx.Redirect(http.StatusFound, "/login")
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	switch ctx.PostForm("action") {
	case "email":
		email := ctx.PostForm("email")

		if email == "" {
			h.renderProfile(ctx, http.StatusBadRequest, "", "Email is required.")
			return
		}

		if err := h.users.UpdateEmail(cctx, id.ID, email); err != nil {
			if errors.Is(err, postgres.ErrEmailTaken) {
				h.renderProfile(ctx, http.StatusConflict, "", "Email is already in use.")
				return
			}

			h.renderProfile(ctx, http.StatusInternalServerError, "", "Could not update email.")
			return
		}

		h.renderProfile(ctx, http.StatusOK, "Email updated.", "")

	case "password":
		current := ctx.PostForm("current_password")
		next := ctx.PostForm("new_password")

		if len(next) < 8 {
			h.renderProfile(ctx, http.StatusBadRequest, "", "New password must be at least 8 characters.")
			return
		}

		u, err := h.users.GetByID(cctx, id.ID)

		if err != nil {
			h.renderProfile(ctx, http.StatusInternalServerError, "", "Could not change password.")
			return
		}

		if u.PasswordHash == nil || !security.VerifyPassword(current, *u.PasswordHash) {
			h.renderProfile(ctx, http.StatusUnauthorized, "", "Current password is incorrect.")
			return
		}

		if err := h.users.SetPassword(cctx, id.ID, next); err != nil {
			h.renderProfile(ctx, http.StatusInternalServerError, "", "Could not change password.")
			return
		}

		// The rotation revoked this session too.
		ctx.Redirect(http.StatusFound, "/login")

	default:
		h.renderProfile(ctx, http.StatusBadRequest, "", "Unknown action.")
	}
}

func (h *WebHandler) renderProfile(ctx *gin.Context, status int, notice, errMsg string) {
	id, ok := middlewares.IdentityFromContext(ctx)

	if !ok {
		ctx.Redirect(http.StatusFound, "/login")
		return
	}

	ctx.HTML(status, "profile.html", gin.H{
		"username":  id.Username,
		"email":     id.Email,
		"notice":    notice,
		"error":     errMsg,
		"csrfToken": csrfOrEmpty(ctx),
	})
}

func (h *WebHandler) cachedCategories() ([]category.Category, error) {
	if cats, ok := h.catCache.Get(categoriesCacheKey); ok {
		return cats, nil
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	cats, err := h.categories.List(cctx)
	if err != nil {
		return nil, err
	}

	h.catCache.Set(categoriesCacheKey, cats)

	return cats, nil
}

func csrfOrEmpty(ctx *gin.Context) string {
	t, _ := middlewares.CSRFTokenFromContext(ctx)
	return t
}
