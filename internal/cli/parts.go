package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/datalite/internal/datom"
)

// NewPartsCommand creates the parts command, which lists the entid
// partition allocators.
func NewPartsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parts",
		Short: "List entid partitions",
		Long: `Lists the entid partitions with their base entid and allocation
cursor. The cursor is the next entid the partition will hand out.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParts(opts, cmd)
		},
	}
}

type partReport struct {
	Part      string `json:"part"`
	Start     int64  `json:"start"`
	Next      int64  `json:"next"`
	Allocated int64  `json:"allocated"`
}

func runParts(opts *RootOptions, cmd *cobra.Command) error {
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

	parts := db.QueryContext().Partitions()
	names := make([]datom.Keyword, 0, len(parts))
	for kw := range parts {
		names = append(names, kw)
	}
	slices.SortFunc(names, datom.Keyword.Compare)

	reports := make([]partReport, 0, len(names))
	for _, kw := range names {
		p := parts[kw]
		reports = append(reports, partReport{
			Part:      kw.String(),
			Start:     int64(p.Start),
			Next:      int64(p.Idx),
			Allocated: int64(p.Idx - p.Start),
		})
	}

	if opts.Format == "json" {
		return formatter.Success(reports)
	}
	for _, r := range reports {
		fmt.Fprintf(cmd.OutOrStdout(), "%s start=%d next=%d allocated=%d\n", r.Part, r.Start, r.Next, r.Allocated)
	}
	return nil
}
