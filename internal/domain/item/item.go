package item

import (
	"encoding/json"
	"time"

	"github.com/calder-labs/webbase/internal/domain/category"
)

type Item struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"` // free-form payload column
	IsActive    bool            `json:"isActive"`
	CategoryID  int64           `json:"categoryId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type WithCategory struct {
	Item
	Category category.Category `json:"category"`
}

type CreateItemRequest struct {
	Title       string          `json:"title" binding:"required,min=1,max=200"`
	Description *string         `json:"description" binding:"omitempty,max=2000"`
	Data        json.RawMessage `json:"data"`
	CategoryID  int64           `json:"categoryId" binding:"required,gt=0"`
}
