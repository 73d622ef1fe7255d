/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/entago/entago/pkg/istorage"
)

// Provide opens a PostgreSQL storage over a pgx pool.
func Provide(ctx context.Context, dsn string) (istorage.IStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &storage{pool: pool}, nil
}
