package handlers_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/calder-labs/webbase/internal/domain/category"
	"github.com/calder-labs/webbase/internal/domain/item"
	"github.com/calder-labs/webbase/internal/http/handlers"
	"github.com/calder-labs/webbase/internal/repo/postgres"
	"github.com/gin-gonic/gin"
)

type fakeCategories struct {
	cats      []category.Category
	getErr    error
	deleteErr error
	deleted   []int64
}

func (f *fakeCategories) Create(_ context.Context, req category.CreateCategoryRequest) (category.Category, error) {
	return category.Category{ID: 1, CategoryName: req.CategoryName, DisplayName: req.DisplayName}, nil
}

func (f *fakeCategories) List(_ context.Context) ([]category.Category, error) {
	return f.cats, nil
}

func (f *fakeCategories) GetByID(_ context.Context, id int64) (category.Category, error) {
	if f.getErr != nil {
		return category.Category{}, f.getErr
	}
	return category.Category{ID: id}, nil
}

func (f *fakeCategories) Delete(_ context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeItems struct {
	createErr error
	items     []item.WithCategory
	byCat     []item.Item
}

func (f *fakeItems) Create(_ context.Context, req item.CreateItemRequest) (item.Item, error) {
	if f.createErr != nil {
		return item.Item{}, f.createErr
	}
	return item.Item{ID: 1, Title: req.Title, CategoryID: req.CategoryID}, nil
}

func (f *fakeItems) List(_ context.Context) ([]item.WithCategory, error) { return f.items, nil }

func (f *fakeItems) ListByCategory(_ context.Context, _ int64) ([]item.Item, error) {
	return f.byCat, nil
}

func (f *fakeItems) GetByID(_ context.Context, id int64) (item.Item, error) {
	return item.Item{ID: id}, nil
}

func (f *fakeItems) Delete(_ context.Context, _ int64) error { return nil }

func TestListCategoriesSetsETag(t *testing.T) {
	cats := &fakeCategories{cats: []category.Category{
		{ID: 1, CategoryName: "tools", DisplayName: "Tools"},
	}}
	h := handlers.NewCategoriesHandler(cats, &fakeItems{}, testConfig())

	r := gin.New()
	r.GET("/api/categories", h.List)

	req, _ := http.NewRequest(http.MethodGet, "/api/categories", nil)
	w := serve(r, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("no ETag on list response")
	}

	// Replaying the request with If-None-Match should short-circuit.
	req, _ = http.NewRequest(http.MethodGet, "/api/categories", nil)
	req.Header.Set("If-None-Match", etag)
	w = serve(r, req)

	if w.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", w.Code)
	}
}

func TestDeleteCategoryNotFound(t *testing.T) {
	cats := &fakeCategories{deleteErr: postgres.ErrCategoryNotFound}
	h := handlers.NewCategoriesHandler(cats, &fakeItems{}, testConfig())

	r := gin.New()
	r.DELETE("/api/categories/:id", h.Delete)

	req, _ := http.NewRequest(http.MethodDelete, "/api/categories/42", nil)
	w := serve(r, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDeleteCategoryBadID(t *testing.T) {
	h := handlers.NewCategoriesHandler(&fakeCategories{}, &fakeItems{}, testConfig())

	r := gin.New()
	r.DELETE("/api/categories/:id", h.Delete)

	req, _ := http.NewRequest(http.MethodDelete, "/api/categories/banana", nil)
	w := serve(r, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateItemUnknownCategory(t *testing.T) {
	items := &fakeItems{createErr: postgres.ErrCategoryNotFound}
	h := handlers.NewItemsHandler(items, testConfig())

	r := gin.New()
	r.POST("/api/items", h.Create)

	w := postJSON(t, r, "/api/items", gin.H{
		"title":      "A thing",
		"categoryId": 999,
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Errorf("body = %s", w.Body.String())
	}
}
