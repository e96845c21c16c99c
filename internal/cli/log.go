package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/datalite/internal/datom"
)

// NewLogCommand creates the log command, which reads the append-only
// transaction log.
func NewLogCommand(opts *RootOptions) *cobra.Command {
	var tx int64

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the transaction log",
		Long: `Shows the append-only transaction log: every assertion and
retraction ever committed, in transaction order. --tx restricts the
output to a single transaction.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd, tx)
		},
	}

	cmd.Flags().Int64Var(&tx, "tx", -1, "only rows from this transaction")

	return cmd
}

type logReport struct {
	Tx    int64  `json:"tx"`
	E     int64  `json:"e"`
	Attr  string `json:"a"`
	Value string `json:"v"`
	Added bool   `json:"added"`
}

func runLog(opts *RootOptions, cmd *cobra.Command, tx int64) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	db, err := openDatabase(opts)
	if err != nil {
		formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return err
	}
	defer db.Close()

	ctx := context.Background()
	rows, err := db.Store().ReadLog(ctx, tx)
	if err != nil {
		wrapped := WrapExitError(ExitCommandError, "read transaction log", err)
		formatter.Error(ErrCodeDatabase, wrapped.Error(), nil)
		return wrapped
	}

	view := db.QueryContext()
	reports := make([]logReport, 0, len(rows))
	for _, r := range rows {
		a := datom.Entid(r.A)
		fulltext := false
		if attr, ok := view.Attribute(a); ok {
			fulltext = attr.Fulltext
		}
		rendered, err := renderStoredValue(ctx, db, r.V, r.ValueTypeTag, fulltext)
		if err != nil {
			wrapped := WrapExitError(ExitCommandError, fmt.Sprintf("decode log row (%d, %d, %d)", r.Tx, r.E, r.A), err)
			formatter.Error(ErrCodeDatabase, wrapped.Error(), nil)
			return wrapped
		}
		reports = append(reports, logReport{
			Tx:    r.Tx,
			E:     r.E,
			Attr:  attrName(view, a),
			Value: rendered,
			Added: r.Added,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(reports)
	}
	for _, r := range reports {
		op := "-"
		if r.Added {
			op = "+"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s %d %s %s\n", r.Tx, op, r.E, r.Attr, r.Value)
	}
	return nil
}
