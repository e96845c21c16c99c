package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/datalite/internal/harness"
)

// NewTestCommand creates the test command, which runs every scenario
// file in a directory against a fresh in-memory database.
func NewTestCommand(opts *RootOptions) *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "test <scenario-dir>",
		Short: "Run transaction scenarios",
		Long: `Runs every YAML scenario in a directory. Each scenario gets a fresh
in-memory database, installs its attributes, applies its transactions,
and checks its expectations and assertions.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(opts, cmd, args[0], trace)
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false, "print the transaction trace of each scenario")

	return cmd
}

type scenarioReport struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
	Trace  []string `json:"trace,omitempty"`
}

type suiteReport struct {
	Total   int              `json:"total"`
	Passed  int              `json:"passed"`
	Failed  int              `json:"failed"`
	Results []scenarioReport `json:"results"`
}

func runTest(opts *RootOptions, cmd *cobra.Command, dir string, trace bool) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		wrapped := NewExitError(ExitCommandError, fmt.Sprintf("scenario directory not found: %s", dir))
		formatter.Error(ErrCodeNotFound, wrapped.Error(), nil)
		return wrapped
	}

	results, err := harness.RunSuite(dir)
	if err != nil {
		wrapped := WrapExitError(ExitCommandError, "run scenarios", err)
		formatter.Error(ErrCodeLoadFailed, wrapped.Error(), nil)
		return wrapped
	}
	if len(results) == 0 {
		wrapped := NewExitError(ExitCommandError, fmt.Sprintf("no scenarios found in %s", dir))
		formatter.Error(ErrCodeNotFound, wrapped.Error(), nil)
		return wrapped
	}

	report := suiteReport{Total: len(results)}
	for _, r := range results {
		sr := scenarioReport{File: filepath.Base(r.Path)}
		switch {
		case r.Err != nil:
			sr.Errors = []string{r.Err.Error()}
		default:
			sr.Name = r.Scenario.Name
			sr.Pass = r.Result.Pass
			sr.Errors = r.Result.Errors
			for _, ev := range r.Result.Trace {
				sr.Trace = append(sr.Trace, ev.Render())
			}
		}
		if sr.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, sr)
	}

	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		printSuite(cmd, report, trace)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d of %d scenarios failed", report.Failed, report.Total))
	}
	return nil
}

func printSuite(cmd *cobra.Command, report suiteReport, trace bool) {
	out := cmd.OutOrStdout()
	for _, r := range report.Results {
		status := color.GreenString("PASS")
		if !r.Pass {
			status = color.RedString("FAIL")
		}
		name := r.Name
		if name == "" {
			name = r.File
		}
		fmt.Fprintf(out, "%s %s\n", status, name)
		if trace {
			for _, line := range r.Trace {
				fmt.Fprintf(out, "  %s\n", line)
			}
		}
		for _, msg := range r.Errors {
			fmt.Fprintf(out, "  %s\n", msg)
		}
	}
	fmt.Fprintf(out, "%d scenarios: %d passed, %d failed\n",
		report.Total, report.Passed, report.Failed)
}
