package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/datalite/internal/datom"
	"github.com/roach88/datalite/internal/transact"
)

// NewDatomsCommand creates the datoms command, which lists the current
// state of the database.
func NewDatomsCommand(opts *RootOptions) *cobra.Command {
	var (
		entity int64
		attr   string
	)

	cmd := &cobra.Command{
		Use:   "datoms",
		Short: "List current-state datoms",
		Long: `Lists the current state of the database as datoms, one per line:
entity, attribute ident, value, and the transaction that asserted it.
Fulltext-indexed values are resolved back to their text.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatoms(opts, cmd, entity, attr)
		},
	}

	cmd.Flags().Int64VarP(&entity, "entity", "e", 0, "only datoms for this entity")
	cmd.Flags().StringVarP(&attr, "attr", "a", "", "only datoms for this attribute ident")

	return cmd
}

type datomReport struct {
	E     int64  `json:"e"`
	Attr  string `json:"a"`
	Value string `json:"v"`
	Tx    int64  `json:"tx"`
}

func runDatoms(opts *RootOptions, cmd *cobra.Command, entity int64, attr string) error {
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

	var attrFilter datom.Entid
	if attr != "" {
		attrFilter, err = resolveAttr(db, attr)
		if err != nil {
			formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return err
		}
	}

	rows, err := db.Store().ReadDatoms(ctx)
	if err != nil {
		wrapped := WrapExitError(ExitCommandError, "read datoms", err)
		formatter.Error(ErrCodeDatabase, wrapped.Error(), nil)
		return wrapped
	}

	view := db.QueryContext()
	reports := make([]datomReport, 0, len(rows))
	for _, r := range rows {
		if entity != 0 && r.E != entity {
			continue
		}
		if attrFilter != 0 && datom.Entid(r.A) != attrFilter {
			continue
		}

		rendered, err := renderStoredValue(ctx, db, r.V, r.ValueTypeTag, r.IndexFulltext)
		if err != nil {
			wrapped := WrapExitError(ExitCommandError, fmt.Sprintf("decode datom (%d, %d)", r.E, r.A), err)
			formatter.Error(ErrCodeDatabase, wrapped.Error(), nil)
			return wrapped
		}

		reports = append(reports, datomReport{
			E:     r.E,
			Attr:  attrName(view, datom.Entid(r.A)),
			Value: rendered,
			Tx:    r.Tx,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(reports)
	}
	for _, d := range reports {
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s %s %d\n", d.E, d.Attr, d.Value, d.Tx)
	}
	return nil
}

// resolveAttr maps a printed attribute ident to its entid.
func resolveAttr(db *transact.DB, printed string) (datom.Entid, error) {
	kw, err := datom.ParseKeyword(printed)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid attribute ident %q", printed))
	}
	eid, ok := db.QueryContext().Entid(kw)
	if !ok {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("unknown attribute %s", kw))
	}
	return eid, nil
}

// attrName renders an attribute entid as its ident when one is bound.
func attrName(view transact.SchemaView, a datom.Entid) string {
	if kw, ok := view.Ident(a); ok {
		return kw.String()
	}
	return fmt.Sprintf("%d", int64(a))
}

// renderStoredValue decodes a raw stored value and renders it for
// display. Fulltext rows store an interned rowid; those resolve back to
// the original text first.
func renderStoredValue(ctx context.Context, db *transact.DB, raw any, tag int, fulltext bool) (string, error) {
	if fulltext {
		rowid, ok := raw.(int64)
		if !ok {
			return "", fmt.Errorf("fulltext value is %T, want rowid", raw)
		}
		text, err := db.Store().FulltextText(ctx, rowid)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%q", text), nil
	}

	v, err := datom.FromSQL(raw, tag)
	if err != nil {
		return "", err
	}
	return formatValue(v), nil
}

// formatValue renders a typed value the way the transaction trace does:
// strings quoted, everything else in its natural printed form.
func formatValue(v datom.Value) string {
	switch tv := v.(type) {
	case datom.String:
		return fmt.Sprintf("%q", string(tv))
	case datom.Boolean:
		return fmt.Sprintf("%t", bool(tv))
	case datom.Double:
		return fmt.Sprintf("%g", float64(tv))
	case datom.Keyword:
		return tv.String()
	case datom.UUID:
		return tv.String()
	case datom.Ref:
		return fmt.Sprintf("%d", int64(tv))
	case datom.Long:
		return fmt.Sprintf("%d", int64(tv))
	case datom.Instant:
		return fmt.Sprintf("%d", int64(tv))
	default:
		return fmt.Sprintf("%v", v)
	}
}
