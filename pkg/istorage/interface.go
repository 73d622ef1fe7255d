/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

// Package istorage defines the relational storage contract of the engine.
//
// The core talks to storage through cursor-style execute/fetch with
// parameterized queries, transactions with savepoints, and row-level
// locking. Drivers (pg, sqlite) adapt concrete engines; no schema feature
// unique to one engine is required here.
package istorage

import "context"

// IStorage is a database handle shared by all Environments. Safe for
// concurrent use; every Environment opens its own cursor.
type IStorage interface {
	// Begin opens a cursor bound to a new transaction.
	Begin(ctx context.Context) (ICursor, error)

	Dialect() Dialect

	Close() error
}

// ICursor is one SQL transaction. Not safe for concurrent use; an
// Environment owns its cursor for the duration of one operation.
type ICursor interface {
	// Execute runs a statement and returns the affected row count.
	Execute(ctx context.Context, query string, args ...any) (int64, error)

	// Query runs a SELECT and returns the row iterator. The iterator must be
	// closed before the cursor is used again.
	Query(ctx context.Context, query string, args ...any) (IRows, error)

	Savepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Dialect() Dialect
}

// IRows iterates a result set.
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Dialect renders the engine-specific corners of SQL.
type Dialect interface {
	Name() string

	// Placeholder renders the n-th (1-based) parameter marker.
	Placeholder(n int) string

	// Like renders a pattern-match predicate; caseInsensitive selects the
	// ilike family. lhs and rhs are SQL fragments.
	Like(lhs, rhs string, caseInsensitive, negate bool) string

	// JSONText extracts a top-level key of a JSON column as text.
	JSONText(column, key string) string

	// Aggregate renders one of the closed aggregate set over an expression:
	// count, count_distinct, sum, avg, min, max, array_agg, bool_and,
	// bool_or. Returns false for a function outside the set.
	Aggregate(fn, expr string) (string, bool)

	// ForUpdate is the row-lock suffix of a SELECT, "" when unsupported.
	ForUpdate() string
}
