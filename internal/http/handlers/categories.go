package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/calder-labs/webbase/internal/config"
	"github.com/calder-labs/webbase/internal/domain/category"
	"github.com/calder-labs/webbase/internal/domain/item"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/gin-gonic/gin"
)

type CategoryStore interface {
	Create(ctx context.Context, req category.CreateCategoryRequest) (category.Category, error)
	List(ctx context.Context) ([]category.Category, error)
	GetByID(ctx context.Context, id int64) (category.Category, error)
	Delete(ctx context.Context, id int64) error
}

type CategoryItemLister interface {
	ListByCategory(ctx context.Context, categoryID int64) ([]item.Item, error)
}

type CategoriesHandler struct {
	store CategoryStore
	items CategoryItemLister
	cfg   config.Config
}

func NewCategoriesHandler(store CategoryStore, items CategoryItemLister, cfg config.Config) *CategoriesHandler {
	return &CategoriesHandler{store: store, items: items, cfg: cfg}
}

func (h *CategoriesHandler) Create(ctx *gin.Context) {
	var req category.CreateCategoryRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	c, err := h.store.Create(cctx, req)

	if err != nil {
		if errors.Is(err, postgres.ErrCategoryTaken) {
			RespondConflict(ctx, "duplicate_category", "Category name is already in use.")
			return
		}

		RespondInternal(ctx, "Could not create category")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"category": c})
}

func (h *CategoriesHandler) List(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	cats, err := h.store.List(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list categories")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"categories": cats})
}

// ListItems returns the items belonging to one category.
func (h *CategoriesHandler) ListItems(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	if _, err := h.store.GetByID(cctx, id); err != nil {
		if errors.Is(err, postgres.ErrCategoryNotFound) {
			RespondNotFound(ctx, "Category not found")
			return
		}

		RespondInternal(ctx, "Could not list items")
		return
	}

	items, err := h.items.ListByCategory(cctx, id)

	if err != nil {
		RespondInternal(ctx, "Could not list items")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"items": items})
}

// Delete removes a category; its items go with it.
func (h *CategoriesHandler) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	err := h.store.Delete(cctx, id)

	if err != nil {
		if errors.Is(err, postgres.ErrCategoryNotFound) {
			RespondNotFound(ctx, "Category not found")
			return
		}

		RespondInternal(ctx, "Could not delete category")
		return
	}

	ctx.Status(http.StatusNoContent)
}

func pathID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)

	if err != nil || id <= 0 {
		RespondBadRequest(ctx, "Invalid id", nil)
		return 0, false
	}

	return id, true
}
