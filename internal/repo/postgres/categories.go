package postgres

import (
	"context"
	"errors"

	"github.com/calder-labs/webbase/internal/domain/category"
	"github.com/calder-labs/webbase/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryTaken    = errors.New("category name already taken")
)

const categoryColumns = `id, category_name, display_name, is_visible, display_order, created_at, updated_at`

type CategoriesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewCategoriesRepo(pool *pgxpool.Pool, prom *observability.Prom) *CategoriesRepo {
	return &CategoriesRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *CategoriesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *CategoriesRepo) Create(ctx context.Context, req category.CreateCategoryRequest) (category.Category, error) {
	var c category.Category

	err := r.observe("categories.create", func() error {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO category (category_name, display_name, display_order)
			 VALUES ($1, $2, $3)
			 RETURNING `+categoryColumns,
			req.CategoryName, req.DisplayName, req.DisplayOrder,
		)

		var err error
		c, err = scanCategory(row)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return category.Category{}, ErrCategoryTaken
		}

		return category.Category{}, err
	}

	return c, nil
}

// List returns visible categories in display order.
func (r *CategoriesRepo) List(ctx context.Context) ([]category.Category, error) {
	out := make([]category.Category, 0)

	err := r.observe("categories.list", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+categoryColumns+`
			 FROM category
			 WHERE is_visible = true
			 ORDER BY display_order, display_name`,
		)
		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var c category.Category

			err = rows.Scan(&c.ID, &c.CategoryName, &c.DisplayName, &c.IsVisible, &c.DisplayOrder, &c.CreatedAt, &c.UpdatedAt)
			if err != nil {
				return err
			}

			out = append(out, c)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *CategoriesRepo) GetByID(ctx context.Context, id int64) (category.Category, error) {
	var c category.Category

	err := r.observe("categories.get_by_id", func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+categoryColumns+`
			 FROM category
			 WHERE id = $1 AND is_visible = true`,
			id,
		)

		var err error
		c, err = scanCategory(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return category.Category{}, ErrCategoryNotFound
		}

		return category.Category{}, err
	}

	return c, nil
}

// Delete removes the category; its items go with it via ON DELETE CASCADE.
func (r *CategoriesRepo) Delete(ctx context.Context, id int64) error {
	return r.observe("categories.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM category WHERE id = $1`, id)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return ErrCategoryNotFound
		}

		return nil
	})
}

func scanCategory(row pgx.Row) (category.Category, error) {
	var c category.Category

	err := row.Scan(&c.ID, &c.CategoryName, &c.DisplayName, &c.IsVisible, &c.DisplayOrder, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return category.Category{}, err
	}

	return c, nil
}
