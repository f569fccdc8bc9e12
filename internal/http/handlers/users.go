package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/calder-labs/webbase/internal/config"
	"github.com/calder-labs/webbase/internal/domain/user"
	"github.com/calder-labs/webbase/internal/http/middlewares"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/calder-labs/webbase/internal/security"
	"github.com/gin-gonic/gin"
)

type AccountStore interface {
	Create(ctx context.Context, username, email, plainPassword string) (user.User, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
	UpdateEmail(ctx context.Context, id int64, email string) error
	SetPassword(ctx context.Context, id int64, plainPassword string) error
}

type UsersHandler struct {
	store AccountStore
	cfg   config.Config
}

func NewUsersHandler(store AccountStore, cfg config.Config) *UsersHandler {
	return &UsersHandler{store: store, cfg: cfg}
}

func (h *UsersHandler) Me(ctx *gin.Context) {
	id, ok := middlewares.IdentityFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	u, err := h.store.GetByID(cctx, id.ID)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not load user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u.Public()})
}

type UpdateEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *UsersHandler) UpdateEmail(ctx *gin.Context) {
	id, ok := middlewares.IdentityFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	var req UpdateEmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	err := h.store.UpdateEmail(cctx, id.ID, req.Email)

	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrEmailTaken):
			RespondConflict(ctx, "duplicate_email", "Email is already in use.")
		case errors.Is(err, postgres.ErrUserNotFound):
			RespondNotFound(ctx, "User not found")
		default:
			RespondInternal(ctx, "Could not update email")
		}
		return
	}

	ctx.Status(http.StatusNoContent)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

// ChangePassword verifies the caller's current password before rotating the
// hash. The rotation revokes every session for the user, including this one,
// so the client has to log in again.
func (h *UsersHandler) ChangePassword(ctx *gin.Context) {
	id, ok := middlewares.IdentityFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	var req ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	u, err := h.store.GetByID(cctx, id.ID)

	if err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	if u.PasswordHash == nil || !security.VerifyPassword(req.CurrentPassword, *u.PasswordHash) {
		RespondUnauthorized(ctx, "invalid_credentials", "Current password is incorrect.")
		return
	}

	if err := h.store.SetPassword(cctx, id.ID, req.NewPassword); err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Password changed. Please log in again."})
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"omitempty,min=8"`
}

// Create adds an account. An empty password is allowed; the account then
// cannot log in until an operator sets one.
func (h *UsersHandler) Create(ctx *gin.Context) {
	var req CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	u, err := h.store.Create(cctx, req.Username, req.Email, req.Password)

	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrUsernameTaken):
			RespondConflict(ctx, "duplicate_username", "Username is already in use.")
		case errors.Is(err, postgres.ErrEmailTaken):
			RespondConflict(ctx, "duplicate_email", "Email is already in use.")
		default:
			RespondInternal(ctx, "Could not create user")
		}
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"user": u.Public()})
}
