package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/harness"
	"github.com/roach88/datalite/internal/transact"
)

// NewTransactCommand creates the transact command, which applies the
// operations in a YAML file as one transaction.
func NewTransactCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transact <ops-file>",
		Short: "Apply a transaction from a YAML file",
		Long: `Applies the operations in a YAML file as a single transaction:

	tx: 100        # optional; omit to allocate from :db.part/tx
	ops:
	  - {op: add, e: -1, a: ":person/name", v: "Alice"}
	  - {op: add, e: -1, a: ":person/email", v: "alice@example.com"}

Negative entity ids are tempids resolved at commit time. The resulting
datoms are printed in transaction-trace form.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransact(opts, cmd, args[0])
		},
	}
	return cmd
}

// txFile is the on-disk shape of a transaction request.
type txFile struct {
	Tx  int64            `yaml:"tx,omitempty"`
	Ops []harness.OpStep `yaml:"ops"`
}

type txReport struct {
	Tx     int64         `json:"tx"`
	Datoms []datomReport `json:"datoms"`
}

func runTransact(opts *RootOptions, cmd *cobra.Command, path string) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	req, err := loadTxFile(path)
	if err != nil {
		formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return err
	}

	db, err := openDatabase(opts)
	if err != nil {
		formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return err
	}
	defer db.Close()

	ops, err := harness.BuildOps(db, req.Ops)
	if err != nil {
		wrapped := WrapExitError(ExitCommandError, "build operations", err)
		formatter.Error(ErrCodeLoadFailed, wrapped.Error(), nil)
		return wrapped
	}

	ctx := context.Background()
	txid, datoms, err := commitOps(ctx, db, req.Tx, ops)
	if err != nil {
		wrapped := wrapTransactError(err)
		formatter.Error(ErrCodeTransact, wrapped.Error(), nil)
		return wrapped
	}

	report := txReport{Tx: int64(txid), Datoms: make([]datomReport, 0, len(datoms))}
	view := db.QueryContext()
	for _, d := range datoms {
		report.Datoms = append(report.Datoms, datomReport{
			E:     int64(d.E),
			Attr:  attrName(view, d.A),
			Value: formatValue(d.V),
			Tx:    int64(d.Tx),
		})
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	for i, d := range report.Datoms {
		op := "+"
		if !datoms[i].Added {
			op = "-"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s %d %s %s\n", d.Tx, op, d.E, d.Attr, d.Value)
	}
	return nil
}

// commitOps applies ops under the explicit txid when one is given, or
// allocates one from :db.part/tx otherwise.
func commitOps(ctx context.Context, db *transact.DB, tx int64, ops []datom.Entity) (datom.Entid, []datom.Datom, error) {
	if tx > 0 {
		datoms, err := db.Transact(ctx, datom.Entid(tx), ops)
		return datom.Entid(tx), datoms, err
	}
	return transact.NewTransactor(db).Transact(ctx, ops)
}

func loadTxFile(path string) (*txFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open operations file", err)
	}
	defer f.Close()

	var req txFile
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&req); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("parse %s", path), err)
	}
	if len(req.Ops) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s declares no operations", path))
	}
	return &req, nil
}

// wrapTransactError maps a rejected transaction onto an exit code:
// malformed input is a command error, everything else a failure.
func wrapTransactError(err error) error {
	if transact.IsSyntaxError(err) {
		return WrapExitError(ExitCommandError, "transaction rejected", err)
	}
	return WrapExitError(ExitFailure, "transaction rejected", err)
}
