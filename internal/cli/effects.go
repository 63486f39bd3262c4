package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emberfall/reckoner/internal/model"
)

// EffectRecord is the JSON shape of one execution attempt.
type EffectRecord struct {
	EffectID string `json:"effect_id"`
	Entity   string `json:"entity"`
	Error    string `json:"error,omitempty"`
}

// EffectsReport summarizes an execution batch.
type EffectsReport struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Timing     string         `json:"timing"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Records    []EffectRecord `json:"records"`
}

// NewEffectsCommand creates the effects command.
func NewEffectsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		fixturePath string
		timing      string
		actor       string
	)

	cmd := &cobra.Command{
		Use:   "effects <entity-type> <entity-id>",
		Short: "Execute an entity's effects for one timing phase",
		Long: `Seed the fixture file into a fresh engine and execute every active
effect registered for the given entity and timing phase, in priority
order. Failed effects are reported; the batch continues past them.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEffects(rootOpts, fixturePath, args[0], args[1], timing, actor, cmd)
		},
	}

	cmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "scenario file holding the campaign state (required)")
	cmd.Flags().StringVarP(&timing, "timing", "t", string(model.TimingOnResolve), "timing phase (PRE|ON_RESOLVE|POST)")
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor recorded on the audit rows")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

func runEffects(opts *RootOptions, fixturePath, entityType, entityID, timing, actor string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	phase := model.Timing(strings.ToUpper(timing))
	if !model.ValidTimings[phase] {
		err := fmt.Errorf("invalid timing %q: must be PRE, ON_RESOLVE, or POST", timing)
		_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	fixture, err := LoadFixture(fixturePath)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return err
	}
	defer fixture.Close()

	s := fixture.Scenario
	res, err := fixture.Engine.ExecuteEffects(
		context.Background(), s.CampaignID, s.BranchID, entityType, entityID, phase, actor)
	if err != nil {
		_ = formatter.Error(ErrCodeRun, err.Error(), nil)
		return NewExitError(ExitFailure, "effect execution failed")
	}

	report := EffectsReport{
		EntityType: entityType,
		EntityID:   entityID,
		Timing:     string(phase),
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		Records:    make([]EffectRecord, 0, len(res.Details)),
	}
	for _, rec := range res.Details {
		report.Records = append(report.Records, EffectRecord{
			EffectID: rec.EffectID,
			Entity:   rec.EntityType + "/" + rec.EntityID,
			Error:    rec.Error,
		})
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "%s/%s %s: %d succeeded, %d failed\n",
			entityType, entityID, phase, res.Succeeded, res.Failed)
		for _, rec := range report.Records {
			if rec.Error == "" {
				fmt.Fprintf(formatter.Writer, "  ok   %s\n", rec.EffectID)
			} else {
				fmt.Fprintf(formatter.Writer, "  fail %s: %s\n", rec.EffectID, rec.Error)
			}
		}
	}

	if res.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d effect(s) failed", res.Failed))
	}
	return nil
}
