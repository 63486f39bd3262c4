package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// GraphNode is the JSON shape of one dependency graph node.
type GraphNode struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Scope   string `json:"scope,omitempty"`
	Virtual bool   `json:"virtual,omitempty"`
}

// GraphReport lists the graph in evaluation order.
type GraphReport struct {
	CampaignID string      `json:"campaign_id"`
	BranchID   string      `json:"branch_id"`
	Order      []GraphNode `json:"order"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	var fixturePath string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph in evaluation order",
		Long: `Build the fixture's dependency graph and print its nodes in
topological order: every node appears after everything it reads.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(rootOpts, fixturePath, cmd)
		},
	}

	cmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "scenario file holding the campaign state (required)")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

func runGraph(opts *RootOptions, fixturePath string, cmd *cobra.Command) error {
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
	g, err := fixture.Engine.Graph(context.Background(), s.CampaignID, s.BranchID)
	if err != nil {
		_ = formatter.Error(ErrCodeRun, err.Error(), nil)
		return NewExitError(ExitFailure, "graph build failed")
	}

	report := GraphReport{CampaignID: s.CampaignID, BranchID: s.BranchID}
	for _, n := range g.TopoOrder() {
		report.Order = append(report.Order, GraphNode{
			Kind:    string(n.Kind),
			Name:    n.Name,
			Scope:   n.Scope,
			Virtual: n.Virtual,
		})
	}

	if formatter.Format == "json" {
		return formatter.JSON(report)
	}

	fmt.Fprintf(formatter.Writer, "campaign %s, branch %s (%d nodes)\n", s.CampaignID, s.BranchID, g.Len())
	for i, n := range report.Order {
		marker := ""
		if n.Virtual {
			marker = " (virtual)"
		}
		fmt.Fprintf(formatter.Writer, "  %2d %-9s %s [%s]%s\n", i+1, n.Kind, n.Name, n.Scope, marker)
	}
	return nil
}
