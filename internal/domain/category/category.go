package category

import "time"

type Category struct {
	ID           int64     `json:"id"`
	CategoryName string    `json:"categoryName"`
	DisplayName  string    `json:"displayName"`
	IsVisible    bool      `json:"isVisible"`
	DisplayOrder int       `json:"displayOrder"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type CreateCategoryRequest struct {
	CategoryName string `json:"categoryName" binding:"required,min=1,max=64"`
	DisplayName  string `json:"displayName" binding:"required,min=1,max=128"`
	DisplayOrder int    `json:"displayOrder" binding:"gte=0"`
}
