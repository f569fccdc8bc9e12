package postgres

import (
	"context"
	"errors"

	"github.com/calder-labs/webbase/internal/domain/item"
	"github.com/calder-labs/webbase/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrItemNotFound = errors.New("item not found")

const itemColumns = `id, title, description, data, is_active, category_id, created_at, updated_at`

type ItemsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewItemsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ItemsRepo {
	return &ItemsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *ItemsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ItemsRepo) Create(ctx context.Context, req item.CreateItemRequest) (item.Item, error) {
	var it item.Item

	err := r.observe("items.create", func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO items (title, description, data, category_id)
			 VALUES ($1, $2, $3, $4)
			 RETURNING `+itemColumns,
			req.Title, req.Description, req.Data, req.CategoryID,
		).Scan(&it.ID, &it.Title, &it.Description, &it.Data, &it.IsActive, &it.CategoryID, &it.CreatedAt, &it.UpdatedAt)
	})
	if err != nil {
		// FK violation means the referenced category does not exist.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return item.Item{}, ErrCategoryNotFound
		}

		return item.Item{}, err
	}

	return it, nil
}

// List returns active items joined with their visible categories, newest
// first.
func (r *ItemsRepo) List(ctx context.Context) ([]item.WithCategory, error) {
	out := make([]item.WithCategory, 0)

	err := r.observe("items.list", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT
				i.id, i.title, i.description, i.data, i.is_active, i.category_id,
				i.created_at, i.updated_at,
				c.id, c.category_name, c.display_name, c.is_visible,
				c.display_order, c.created_at, c.updated_at
			 FROM items i
			 JOIN category c ON i.category_id = c.id
			 WHERE c.is_visible = true AND i.is_active = true
			 ORDER BY i.created_at DESC`,
		)
		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var ic item.WithCategory

			err = rows.Scan(
				&ic.ID, &ic.Title, &ic.Description, &ic.Data, &ic.IsActive, &ic.CategoryID,
				&ic.CreatedAt, &ic.UpdatedAt,
				&ic.Category.ID, &ic.Category.CategoryName, &ic.Category.DisplayName, &ic.Category.IsVisible,
				&ic.Category.DisplayOrder, &ic.Category.CreatedAt, &ic.Category.UpdatedAt,
			)
			if err != nil {
				return err
			}

			out = append(out, ic)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *ItemsRepo) ListByCategory(ctx context.Context, categoryID int64) ([]item.Item, error) {
	out := make([]item.Item, 0)

	err := r.observe("items.list_by_category", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+itemColumns+`
			 FROM items
			 WHERE category_id = $1 AND is_active = true
			 ORDER BY created_at DESC`,
			categoryID,
		)
		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var it item.Item

			err = rows.Scan(&it.ID, &it.Title, &it.Description, &it.Data, &it.IsActive, &it.CategoryID, &it.CreatedAt, &it.UpdatedAt)
			if err != nil {
				return err
			}

			out = append(out, it)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *ItemsRepo) GetByID(ctx context.Context, id int64) (item.Item, error) {
	var it item.Item

	err := r.observe("items.get_by_id", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT `+itemColumns+`
			 FROM items
			 WHERE id = $1 AND is_active = true`,
			id,
		).Scan(&it.ID, &it.Title, &it.Description, &it.Data, &it.IsActive, &it.CategoryID, &it.CreatedAt, &it.UpdatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return item.Item{}, ErrItemNotFound
		}

		return item.Item{}, err
	}

	return it, nil
}

func (r *ItemsRepo) Delete(ctx context.Context, id int64) error {
	return r.observe("items.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return ErrItemNotFound
		}

		return nil
	})
}
