/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entago/entago/pkg/modeldef"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the model schema",
	}
	cmd.AddCommand(newSchemaDDLCmd(), newSchemaListCmd())
	return cmd
}

func newSchemaDDLCmd() *cobra.Command {
	var dialect string
	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the CREATE statements of the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := demoModel()
			if err != nil {
				return err
			}
			d, err := ddlDialect(dialect)
			if err != nil {
				return err
			}
			for _, stmt := range modeldef.DDL(reg, d) {
				fmt.Println(stmt + ";")
			}
			return nil
		},
	}
	addDialectFlag(cmd, &dialect)
	return cmd
}

func newSchemaListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entities and their fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := demoModel()
			if err != nil {
				return err
			}
			reg.Entities(func(e modeldef.IEntity) {
				fmt.Printf("%s (%s)\n", e.Name(), e.Table())
				e.Fields(func(f modeldef.IField) {
					extra := ""
					if f.Kind().Relational() {
						extra = " -> " + f.Comodel()
					}
					fmt.Printf("  %-20s %s%s\n", f.Name(), f.Kind(), extra)
				})
			})
			return nil
		},
	}
}

func ddlDialect(name string) (modeldef.DDLDialect, error) {
	switch name {
	case "postgres":
		return modeldef.DDLPostgres, nil
	case "sqlite":
		return modeldef.DDLSQLite, nil
	}
	return 0, fmt.Errorf("unknown dialect %q", name)
}
