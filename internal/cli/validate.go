package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emberfall/reckoner/internal/authoring"
)

// FileResult is the validation outcome for one document.
type FileResult struct {
	File  string `json:"file"`
	Kind  string `json:"kind"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationReport aggregates per-file results.
type ValidationReport struct {
	Valid   bool         `json:"valid"`
	Results []FileResult `json:"results"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate rule documents against their schemas",
		Long: `Validate condition, effect, and variable documents (YAML or JSON)
against the embedded schemas, including expression depth and operator checks.

The document kind is inferred from the filename (condition*, effect*,
variable*) unless --kind is given.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, kind, args, cmd)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "document kind: condition|effect|variable (default: infer from filename)")
	return cmd
}

func runValidate(opts *RootOptions, kind string, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	report := ValidationReport{Valid: true}
	for _, path := range paths {
		res := validateFile(path, kind, formatter)
		if !res.Valid {
			report.Valid = false
		}
		report.Results = append(report.Results, res)
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(report); err != nil {
			return err
		}
	} else {
		for _, res := range report.Results {
			if res.Valid {
				fmt.Fprintf(formatter.Writer, "ok   %s (%s)\n", res.File, res.Kind)
			} else {
				fmt.Fprintf(formatter.Writer, "FAIL %s (%s): %s\n", res.File, res.Kind, res.Error)
			}
		}
	}

	if !report.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validateFile(path, kind string, formatter *OutputFormatter) FileResult {
	res := FileResult{File: path}

	if kind == "" {
		kind = inferKind(path)
	}
	res.Kind = kind
	if kind == "" {
		res.Error = "cannot infer document kind from filename; pass --kind"
		return res
	}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	formatter.VerboseLog("validating %s as %s", path, kind)
	switch kind {
	case "condition":
		_, err = authoring.DecodeCondition(data)
	case "effect":
		_, err = authoring.DecodeEffect(data)
	case "variable":
		_, err = authoring.DecodeVariable(data)
	default:
		err = fmt.Errorf("unknown kind %q: must be condition, effect, or variable", kind)
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Valid = true
	return res
}

// inferKind guesses the document kind from the filename prefix.
func inferKind(path string) string {
	name := strings.ToLower(filepath.Base(path))
	for _, kind := range []string{"condition", "effect", "variable"} {
		if strings.HasPrefix(name, kind) {
			return kind
		}
	}
	return ""
}
