/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/untillpro/goutils/cobrau"
)

var version = "0.1.0"

func main() {
	if err := execRootCmd(os.Args, version); err != nil {
		os.Exit(1)
	}
}

func execRootCmd(args []string, ver string) error {
	rootCmd := cobrau.PrepareRootCmd(
		"entago",
		"Entity engine utility",
		args,
		ver,
		newSchemaCmd(),
		newDBCmd(),
	)
	return cobrau.ExecCommandAndCatchInterrupt(rootCmd)
}

func addDialectFlag(cmd *cobra.Command, dialect *string) {
	cmd.Flags().StringVar(dialect, "dialect", "postgres", "SQL dialect: postgres or sqlite")
}
