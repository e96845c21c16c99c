// Package main is the entry point for the datalite CLI.
//
// datalite is a transaction-processing datom store on SQLite: assertions
// and retractions over entity-attribute-value facts, an append-only
// transaction log, live schema mutation, and a YAML scenario runner.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/roach88/datalite/internal/cli"
)

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "datalite: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
