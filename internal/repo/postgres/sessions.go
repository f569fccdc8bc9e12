package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/calder-labs/webbase/internal/observability"
	"github.com/calder-labs/webbase/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionsRepo implements session.Store on Postgres. Sessions survive
// process restarts; only token hashes ever reach this table.
type SessionsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSessionsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SessionsRepo {
	return &SessionsRepo{
		pool: pool,
		prom: prom,
	}
}

var _ session.Store = (*SessionsRepo)(nil)

func (r *SessionsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *SessionsRepo) Insert(ctx context.Context, s session.Session, tokenHash string) error {
	return r.observe("sessions.insert", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO sessions (id, user_id, token_hash, csrf_token, expires_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, s.UserID, tokenHash, s.CSRFToken, s.ExpiresAt, s.CreatedAt,
		)
		return err
	})
}

func (r *SessionsRepo) GetByTokenHash(ctx context.Context, tokenHash string) (session.Session, error) {
	var s session.Session

	err := r.observe("sessions.get_by_token_hash", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, user_id, csrf_token, expires_at, created_at
			 FROM sessions
			 WHERE token_hash = $1`,
			tokenHash,
		).Scan(&s.ID, &s.UserID, &s.CSRFToken, &s.ExpiresAt, &s.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}

		return session.Session{}, err
	}

	return s, nil
}

func (r *SessionsRepo) ExtendByTokenHash(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	return r.observe("sessions.extend", func() error {
		// Plain last-write-wins update; concurrent tabs extending the same
		// session race harmlessly.
		tag, err := r.pool.Exec(ctx,
			`UPDATE sessions SET expires_at = $2 WHERE token_hash = $1`,
			tokenHash, expiresAt,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return session.ErrNotFound
		}

		return nil
	})
}

func (r *SessionsRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	return r.observe("sessions.delete", func() error {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM sessions WHERE token_hash = $1`, tokenHash,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return session.ErrNotFound
		}

		return nil
	})
}

func (r *SessionsRepo) DeleteAllForUser(ctx context.Context, userID int64) error {
	return r.observe("sessions.delete_all_for_user", func() error {
		_, err := r.pool.Exec(ctx,
			`DELETE FROM sessions WHERE user_id = $1`, userID,
		)
		return err
	})
}

func (r *SessionsRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var removed int64

	err := r.observe("sessions.delete_expired", func() error {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM sessions WHERE expires_at < NOW()`,
		)
		if err != nil {
			return err
		}

		removed = tag.RowsAffected()
		return nil
	})

	return removed, err
}
