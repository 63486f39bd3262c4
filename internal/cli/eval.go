package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// EvalReport is the JSON shape of an eval command result.
type EvalReport struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Fields     map[string]any `json:"fields"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	var fixturePath string

	cmd := &cobra.Command{
		Use:   "eval <entity-type> <entity-id>",
		Short: "Evaluate an entity's computed fields",
		Long: `Seed the fixture file into a fresh engine and evaluate every
condition applying to the given entity.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(rootOpts, fixturePath, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "scenario file holding the campaign state (required)")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

func runEval(opts *RootOptions, fixturePath, entityType, entityID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	fixture, err := LoadFixture(fixturePath)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return err
	}
	defer fixture.Close()

	s := fixture.Scenario
	formatter.VerboseLog("fixture %s: campaign %s, branch %s", s.Name, s.CampaignID, s.BranchID)

	fields, err := fixture.Engine.EvaluateComputedFields(
		context.Background(), s.CampaignID, s.BranchID, entityType, entityID)
	if err != nil {
		_ = formatter.Error(ErrCodeRun, err.Error(), nil)
		return NewExitError(ExitFailure, "evaluation failed")
	}

	report := EvalReport{EntityType: entityType, EntityID: entityID, Fields: fields}
	if formatter.Format == "json" {
		return formatter.JSON(report)
	}

	fmt.Fprintf(formatter.Writer, "%s/%s\n", entityType, entityID)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(formatter.Writer, "  %s: %v\n", name, fields[name])
	}
	return nil
}
