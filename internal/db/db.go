package db

import (
	"context"
	"time"

	"github.com/calder-labs/webbase/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DBURL)

	if err != nil {
		return nil, err
	}

	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.MaxConns = cfg.DBMaxConns

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)

	if err != nil {
		return nil, err
	}

	err = pool.Ping(ctx)

	if err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
