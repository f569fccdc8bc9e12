package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/calder-labs/webbase/internal/config"
	"github.com/calder-labs/webbase/internal/domain/item"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/gin-gonic/gin"
)

type ItemStore interface {
	Create(ctx context.Context, req item.CreateItemRequest) (item.Item, error)
	List(ctx context.Context) ([]item.WithCategory, error)
	GetByID(ctx context.Context, id int64) (item.Item, error)
	Delete(ctx context.Context, id int64) error
}

type ItemsHandler struct {
	store ItemStore
	cfg   config.Config
}

func NewItemsHandler(store ItemStore, cfg config.Config) *ItemsHandler {
	return &ItemsHandler{store: store, cfg: cfg}
}

func (h *ItemsHandler) Create(ctx *gin.Context) {
	var req item.CreateItemRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	it, err := h.store.Create(cctx, req)

	if err != nil {
		if errors.Is(err, postgres.ErrCategoryNotFound) {
			RespondNotFound(ctx, "Category not found")
			return
		}

		RespondInternal(ctx, "Could not create item")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"item": it})
}

func (h *ItemsHandler) List(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	items, err := h.store.List(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list items")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"items": items})
}

func (h *ItemsHandler) Get(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	it, err := h.store.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, postgres.ErrItemNotFound) {
			RespondNotFound(ctx, "Item not found")
			return
		}

		RespondInternal(ctx, "Could not load item")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"item": it})
}

func (h *ItemsHandler) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(h.cfg.QueryTimeout)
	defer cancel()

	err := h.store.Delete(cctx, id)

	if err != nil {
		if errors.Is(err, postgres.ErrItemNotFound) {
			RespondNotFound(ctx, "Item not found")
			return
		}

		RespondInternal(ctx, "Could not delete item")
		return
	}

	ctx.Status(http.StatusNoContent)
}
