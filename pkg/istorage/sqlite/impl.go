/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

// Package sqlite adapts SQLite (pure-Go driver) as an embedded storage,
// used by the test suites and small single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "modernc.org/sqlite"

	"github.com/entago/entago/pkg/istorage"
)

// # Implements:
//   - istorage.IStorage
type storage struct {
	db *sql.DB
}

func (s *storage) Begin(ctx context.Context) (istorage.ICursor, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &cursor{tx: tx}, nil
}

func (s *storage) Dialect() istorage.Dialect { return istorage.SQLite }

func (s *storage) Close() error { return s.db.Close() }

// # Implements:
//   - istorage.ICursor
type cursor struct {
	tx   *sql.Tx
	done bool
}

func (c *cursor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if c.done {
		return 0, istorage.ErrClosed
	}
	res, err := c.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

func (c *cursor) Query(ctx context.Context, query string, args ...any) (istorage.IRows, error) {
	if c.done {
		return nil, istorage.ErrClosed
	}
	rows, err := c.tx.QueryContext(ctx, query, args...)
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
	return wrapErr(c.tx.Commit())
}

func (c *cursor) Rollback(ctx context.Context) error {
	if c.done {
		return nil
	}
	c.done = true
	return wrapErr(c.tx.Rollback())
}

func (c *cursor) Dialect() istorage.Dialect { return istorage.SQLite }

// # Implements:
//   - istorage.IRows
type rowsAdapter struct {
	rows *sql.Rows
}

func (r *rowsAdapter) Next() bool              { return r.rows.Next() }
func (r *rowsAdapter) Scan(dest ...any) error  { return r.rows.Scan(dest...) }
func (r *rowsAdapter) Err() error              { return wrapErr(r.rows.Err()) }
func (r *rowsAdapter) Close() error            { return r.rows.Close() }

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

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var sqErr *sqlite3.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() & 0xff {
		case codeBusy, codeLocked:
			return fmt.Errorf("%w: %v", istorage.ErrSerialization, err)
		case codeConstraint:
			return fmt.Errorf("%w: %v", istorage.ErrIntegrity, err)
		}
	}
	return err
}
