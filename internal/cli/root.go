package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/datalite/internal/transact"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Database    string
	Verbose     bool
	Format      string // "json" | "text"
	MetricsAddr string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the datalite CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "datalite",
		Short: "datalite - a datom store on SQLite",
		Long: `A transaction-processing datom database on SQLite: assertions and
retractions over entity-attribute-value facts, an append-only
transaction log, and live schema mutation.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.MetricsAddr != "" {
				serveMetrics(opts.MetricsAddr)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "datalite.db", "path to the SQLite database")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics", "", "serve Prometheus metrics on this address while the command runs")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewTransactCommand(opts))
	cmd.AddCommand(NewDatomsCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewPartsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// serveMetrics exposes the process metrics for the lifetime of the
// command. Useful for watching long scenario suites or batch imports.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Warn("metrics endpoint stopped", "addr", addr, "error", err)
		}
	}()
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openDatabase opens the database named by the global --db flag, with a
// logger honoring --verbose. JSON output keeps logs on stderr.
func openDatabase(opts *RootOptions) (*transact.DB, error) {
	level := slog.LevelWarn
	var w io.Writer = os.Stderr
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))

	db, err := transact.Open(opts.Database, transact.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %s", opts.Database), err)
	}
	return db, nil
}
