package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsynth/internal/pipeline"
)

func NewScanCmd(app *App) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Report which columns hold personal data",
		Long: `Classify every column of a dataset by name and content and print the
verdicts as JSON. Flagged columns are the ones train replaces with synthetic
values.`,
		Example: `  tabsynth scan --data customers.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), app, cmd, data)
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "Data location (required)")
	cmd.MarkFlagRequired("data")

	return cmd
}

func runScan(ctx context.Context, app *App, cmd *cobra.Command, data string) error {
	s, err := app.open()
	if err != nil {
		return err
	}
	defer s.close()

	report, err := pipeline.NewScanner(s.rt).Run(ctx, data)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), report)
}
