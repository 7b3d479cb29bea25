package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsynth/internal/pipeline"
)

func NewAuditCmd(app *App) *cobra.Command {
	opts := &pipeline.AuditOptions{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check synthetic data for rows copied from the original",
		Long: `Compare an existing synthetic dataset with the original on their shared
columns and report every synthetic row that equals an original row. With
--output the remaining rows are written as CSV.`,
		Example: `  tabsynth audit --original customers.csv --synthetic synthetic.csv
  tabsynth audit --original customers.csv --synthetic synthetic.csv --output clean.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context(), app, cmd, opts)
		},
	}

	// Add flags
	cmd.Flags().StringVar(&opts.Original, "original", "", "Original data location (required)")
	cmd.Flags().StringVar(&opts.Synthetic, "synthetic", "", "Synthetic data location (required)")
	cmd.Flags().StringVar(&opts.Output, "output", "", "Where to write the rows that pass the audit")

	cmd.MarkFlagRequired("original")
	cmd.MarkFlagRequired("synthetic")

	return cmd
}

func runAudit(ctx context.Context, app *App, cmd *cobra.Command, opts *pipeline.AuditOptions) error {
	s, err := app.open()
	if err != nil {
		return err
	}
	defer s.close()

	report, err := pipeline.NewAuditor(s.rt).Run(ctx, *opts)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), report)
}
