/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/untillpro/goutils/logger"

	"github.com/entago/entago/pkg/istorage"
	"github.com/entago/entago/pkg/istorage/pg"
	"github.com/entago/entago/pkg/istorage/sqlite"
	"github.com/entago/entago/pkg/modeldef"
)

// Connection settings come from the environment, optionally via .env:
// ENTAGO_DB selects the engine (postgres or sqlite), ENTAGO_DSN the
// database.
func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the database",
	}
	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the model's tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return err
				}
			} else {
				// default .env is optional
				_ = godotenv.Load()
			}
			engine := os.Getenv("ENTAGO_DB")
			dsn := os.Getenv("ENTAGO_DSN")
			if dsn == "" {
				return fmt.Errorf("ENTAGO_DSN is not set")
			}

			ctx := cmd.Context()
			storage, dialect, err := openStorage(ctx, engine, dsn)
			if err != nil {
				return err
			}
			defer storage.Close()

			reg, err := demoModel()
			if err != nil {
				return err
			}
			cursor, err := storage.Begin(ctx)
			if err != nil {
				return err
			}
			for _, stmt := range modeldef.DDL(reg, dialect) {
				if _, err := cursor.Execute(ctx, stmt); err != nil {
					if rbErr := cursor.Rollback(ctx); rbErr != nil {
						logger.Error("rollback:", rbErr)
					}
					return fmt.Errorf("%s: %w", stmt, err)
				}
			}
			if err := cursor.Commit(ctx); err != nil {
				return err
			}
			logger.Info("schema initialized:", reg.EntityCount(), "entities")
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env", "", "Path to an .env file")
	return cmd
}

func openStorage(ctx context.Context, engine, dsn string) (istorage.IStorage, modeldef.DDLDialect, error) {
	switch engine {
	case "", "postgres":
		s, err := pg.Provide(ctx, dsn)
		return s, modeldef.DDLPostgres, err
	case "sqlite":
		s, err := sqlite.Provide(ctx, dsn)
		return s, modeldef.DDLSQLite, err
	}
	return nil, 0, fmt.Errorf("unknown database engine %q", engine)
}
