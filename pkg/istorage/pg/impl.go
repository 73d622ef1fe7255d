/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

// Package pg adapts PostgreSQL through pgx as the production storage driver.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/entago/entago/pkg/istorage"
)

// # Implements:
//   - istorage.IStorage
type storage struct {
	pool *pgxpool.Pool
}

func (s *storage) Begin(ctx context.Context) (istorage.ICursor, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &cursor{tx: tx}, nil
}

func (s *storage) Dialect() istorage.Dialect { return istorage.Postgres }

func (s *storage) Close() error {
	s.pool.Close()
	return nil
}

// # Implements:
//   - istorage.ICursor
type cursor struct {
	tx   pgx.Tx
	done bool
}

func (c *cursor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if c.done {
		return 0, istorage.ErrClosed
	}
	tag, err := c.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, wrapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (c *cursor) Query(ctx context.Context, query string, args ...any) (istorage.IRows, error) {
	if c.done {
		return nil, istorage.ErrClosed
	}
	rows, err := c.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &rowsAdapter{rows: rows}, nil
}

func (c *cursor) Savepoint(ctx context.Context, name string) error {
	_, err := c.Execute(ctx, "SAVEPOINT "+savepointIdent(name))
	return err
}

func (c *cursor) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := c.Execute(ctx, "RELEASE SAVEPOINT "+savepointIdent(name))
	return err
}

func (c *cursor) RollbackToSavepoint(ctx context.Context, name string) error {
	_, err := c.Execute(ctx, "ROLLBACK TO SAVEPOINT "+savepointIdent(name))
	return err
}

func (c *cursor) Commit(ctx context.Context) error {
	if c.done {
		return istorage.ErrClosed
	}
	c.done = true
	return wrapErr(c.tx.Commit(ctx))
}

func (c *cursor) Rollback(ctx context.Context) error {
	if c.done {
		return nil
	}
	c.done = true
	return wrapErr(c.tx.Rollback(ctx))
}

func (c *cursor) Dialect() istorage.Dialect { return istorage.Postgres }

// # Implements:
//   - istorage.IRows
type rowsAdapter struct {
	rows pgx.Rows
}

func (r *rowsAdapter) Next() bool { return r.rows.Next() }

func (r *rowsAdapter) Scan(dest ...any) error { return r.rows.Scan(dest...) }

func (r *rowsAdapter) Err() error { return wrapErr(r.rows.Err()) }

func (r *rowsAdapter) Close() error {
	r.rows.Close()
	return nil
}

// savepointIdent keeps savepoint names inside the unquoted identifier
// charset whatever the caller passed.
func savepointIdent(name string) string {
	out := make([]byte, 0, len(name)+3)
	out = append(out, "sp_"...)
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_' {
			out = append(out, ch)
		}
	}
	return string(out)
}

// wrapErr maps engine error codes onto the istorage taxonomy.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeSerialization:
			return fmt.Errorf("%w: %s", istorage.ErrSerialization, pgErr.Message)
		case pgErr.Code == codeDeadlock:
			return fmt.Errorf("%w: %s", istorage.ErrDeadlock, pgErr.Message)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == classIntegrity:
			return fmt.Errorf("%w: %s", istorage.ErrIntegrity, pgErr.Message)
		}
	}
	return err
}
