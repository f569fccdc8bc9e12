package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/calder-labs/webbase/internal/domain/user"
	"github.com/calder-labs/webbase/internal/observability"
	"github.com/calder-labs/webbase/internal/security"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already taken")
)

const userColumns = `id, username, email, password_hash, email_verified, is_active, last_login, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Create inserts a new user. The plaintext password is hashed here; callers
// never hand the repo a pre-computed hash. An empty password leaves the hash
// NULL, which makes the account unable to log in until a password is set.
func (r *UsersRepo) Create(ctx context.Context, username, email, plainPassword string) (user.User, error) {
	username = normalize(username)
	email = normalize(email)

	var hash *string

	if plainPassword != "" {
		h, err := security.HashPassword(plainPassword)
		if err != nil {
			return user.User{}, err
		}
		hash = &h
	}

	var u user.User

	err := r.observe("users.create", func() error {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO users (username, email, password_hash)
			 VALUES ($1, $2, $3)
			 RETURNING `+userColumns,
			username, email, hash,
		)

		var err error
		u, err = scanUser(row)
		return err
	})
	if err != nil {
		return user.User{}, mapUniqueViolation(err)
	}

	return u, nil
}

// GetByIdentifier looks a user up by username or email, case-insensitively.
func (r *UsersRepo) GetByIdentifier(ctx context.Context, identifier string) (user.User, error) {
	identifier = normalize(identifier)

	var u user.User

	err := r.observe("users.get_by_identifier", func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
			 FROM users
			 WHERE username = $1 OR email = $1`,
			identifier,
		)

		var err error
		u, err = scanUser(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrUserNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		)

		var err error
		u, err = scanUser(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrUserNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// SetPassword re-hashes and stores a new password, and drops every session
// the user owns in the same transaction. A crash between the two statements
// cannot leave old sessions valid after the reset.
func (r *UsersRepo) SetPassword(ctx context.Context, id int64, plainPassword string) error {
	hash, err := security.HashPassword(plainPassword)
	if err != nil {
		return err
	}

	return r.observe("users.set_password", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx,
			`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
			hash, id,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, id); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

func (r *UsersRepo) TouchLastLogin(ctx context.Context, id int64) error {
	return r.observe("users.touch_last_login", func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE users SET last_login = NOW(), updated_at = NOW() WHERE id = $1`, id,
		)
		return err
	})
}

func (r *UsersRepo) UpdateEmail(ctx context.Context, id int64, email string) error {
	err := r.observe("users.update_email", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users SET email = $1, updated_at = NOW() WHERE id = $2`,
			normalize(email), id,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}

		return nil
	})
	if err != nil {
		return mapUniqueViolation(err)
	}

	return nil
}

// Deactivate soft-deletes the account. Hard deletion is out of scope; the
// row stays so historical references keep working.
func (r *UsersRepo) Deactivate(ctx context.Context, id int64) error {
	return r.observe("users.deactivate", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users SET is_active = false, updated_at = NOW() WHERE id = $1`, id,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}

		return nil
	})
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.EmailVerified,
		&u.IsActive,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

// mapUniqueViolation turns pg unique violations into typed duplicate errors
// keyed by constraint name.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return ErrUsernameTaken
		case "users_email_key":
			return ErrEmailTaken
		}
	}

	return err
}

// Case handling is fixed at creation time: usernames and emails are stored
// and matched lowercase.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
