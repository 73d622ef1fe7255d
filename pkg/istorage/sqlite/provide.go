/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/entago/entago/pkg/istorage"
)

// Provide opens a SQLite storage. Use ":memory:" for ephemeral test
// databases.
func Provide(ctx context.Context, dsn string) (istorage.IStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// single connection: keeps ":memory:" coherent and serializes writers
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA case_sensitive_like = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &storage{db: db}, nil
}
