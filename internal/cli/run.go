package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberfall/reckoner/internal/harness"
)

// RunReport is the JSON shape of a scenario run.
type RunReport struct {
	Scenario string               `json:"scenario"`
	Passed   bool                 `json:"passed"`
	Trace    []harness.TraceEvent `json:"trace"`
	Errors   []string             `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and report its trace",
		Long: `Execute a declarative scenario against a fresh in-memory engine.

The scenario's expectations are checked; any failure makes the command
exit non-zero with the mismatches listed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, args[0], cmd)
		},
	}
}

func runRun(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return NewExitError(ExitCommandError, "load scenario")
	}

	formatter.VerboseLog("running scenario %s (%d steps)", scenario.Name, len(scenario.Steps))
	result, err := harness.Run(scenario)
	if err != nil {
		_ = formatter.Error(ErrCodeRun, err.Error(), nil)
		return NewExitError(ExitFailure, "scenario failed")
	}

	report := RunReport{
		Scenario: scenario.Name,
		Passed:   result.Passed(),
		Trace:    result.Trace,
		Errors:   result.Errors,
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(report); err != nil {
			return err
		}
	} else {
		printRunText(formatter, &report)
	}

	if !report.Passed {
		return NewExitError(ExitFailure, fmt.Sprintf("%d expectation(s) failed", len(report.Errors)))
	}
	return nil
}

func printRunText(formatter *OutputFormatter, report *RunReport) {
	fmt.Fprintf(formatter.Writer, "scenario: %s\n", report.Scenario)
	for i, ev := range report.Trace {
		switch ev.Type {
		case "eval":
			fmt.Fprintf(formatter.Writer, "  %2d eval %s -> %v\n", i+1, ev.Entity, ev.Fields)
		case "set_variable":
			fmt.Fprintf(formatter.Writer, "  %2d set %s = %v\n", i+1, ev.Key, ev.Value)
		case "execute_effects":
			fmt.Fprintf(formatter.Writer, "  %2d effects %s: %d ok, %d failed\n", i+1, ev.Entity, ev.Succeeded, ev.Failed)
		case "eval_variable":
			fmt.Fprintf(formatter.Writer, "  %2d var %s -> %v\n", i+1, ev.Key, ev.Value)
		}
	}
	if report.Passed {
		fmt.Fprintln(formatter.Writer, "PASS")
		return
	}
	for _, msg := range report.Errors {
		fmt.Fprintf(formatter.Writer, "FAIL: %s\n", msg)
	}
}
