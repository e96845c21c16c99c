package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/datalite/internal/transact"
)

// NewSchemaCommand creates the schema command group: show the installed
// attributes, or install new ones from CUE declarations.
func NewSchemaCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect or extend the schema",
	}
	cmd.AddCommand(newSchemaShowCommand(opts))
	cmd.AddCommand(newSchemaApplyCommand(opts))
	return cmd
}

type attributeReport struct {
	Entid       int64  `json:"entid"`
	Ident       string `json:"ident"`
	Type        string `json:"type"`
	Cardinality string `json:"cardinality"`
	Unique      string `json:"unique,omitempty"`
	Index       bool   `json:"index,omitempty"`
	Fulltext    bool   `json:"fulltext,omitempty"`
}

func newSchemaShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "List installed attributes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaShow(opts, cmd)
		},
	}
}

func runSchemaShow(opts *RootOptions, cmd *cobra.Command) error {
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

	reports := describeSchema(db.QueryContext())
	if opts.Format == "json" {
		return formatter.Success(reports)
	}
	for _, r := range reports {
		line := fmt.Sprintf("%d %s %s %s", r.Entid, r.Ident, r.Type, r.Cardinality)
		if r.Unique != "" {
			line += " unique=" + r.Unique
		}
		if r.Index {
			line += " index"
		}
		if r.Fulltext {
			line += " fulltext"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

func describeSchema(view transact.SchemaView) []attributeReport {
	s := view.Schema()
	reports := make([]attributeReport, 0, s.Len())
	for _, eid := range s.Entids() {
		attr, _ := s.Attribute(eid)
		r := attributeReport{
			Entid:       int64(eid),
			Ident:       attrName(view, eid),
			Type:        attr.ValueType.String(),
			Cardinality: attr.Cardinality.String(),
			Index:       attr.Index,
			Fulltext:    attr.Fulltext,
		}
		if kw, ok := attr.Unique.Keyword(); ok {
			r.Unique = kw.String()
		}
		reports = append(reports, r)
	}
	return reports
}

func newSchemaApplyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <cue-dir>",
		Short: "Install attributes declared in CUE files",
		Long: `Installs the attributes declared by the CUE files in a directory.
Each file contributes to a single top-level "attributes" struct keyed
by printed idents. Already-installed idents are rejected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaApply(opts, cmd, args[0])
		},
	}
}

func runSchemaApply(opts *RootOptions, cmd *cobra.Command, dir string) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	def, err := LoadSchemaDir(dir)
	if err != nil {
		formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return err
	}
	formatter.VerboseLog("loaded %d attribute declarations from %s", len(def), dir)

	db, err := openDatabase(opts)
	if err != nil {
		formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return err
	}
	defer db.Close()

	if _, err := db.DefineAttributes(context.Background(), def); err != nil {
		wrapped := WrapExitError(ExitFailure, "install attributes", err)
		formatter.Error(ErrCodeSchema, wrapped.Error(), nil)
		return wrapped
	}

	if opts.Format == "json" {
		return formatter.Success(describeSchema(db.QueryContext()))
	}
	return formatter.Success(fmt.Sprintf("installed %d attributes", len(def)))
}
