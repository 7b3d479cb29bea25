package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsynth/internal/pipeline"
	"github.com/inferloop/tabsynth/pkg/constants"
)

type GenerateOptions struct {
	Model     string
	Output    string
	Count     int
	Original  string
	Anomalies string
}

func NewGenerateCmd(app *App) *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic rows from a trained model",
		Long: `Sample synthetic rows from a trained model and write them as CSV.
When the original data is given, rows that copy an original row are removed.
Anomalies can be injected into chosen columns.`,
		Example: `  # Generate 1000 rows
  tabsynth generate --model model.pkl --output synthetic.csv

  # Remove rows that leak from the original data
  tabsynth generate --model model.pkl --output synthetic.csv --count 5000 --original customers.csv

  # Inject anomalies
  tabsynth generate --model model.pkl --output synthetic.csv \
    --anomalies '[{"column":"income","type":"fixed","value":-1,"ratio":0.02}]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), app, cmd, opts)
		},
	}

	// Add flags
	cmd.Flags().StringVar(&opts.Model, "model", "", "Trained model location (required)")
	cmd.Flags().StringVar(&opts.Output, "output", "", "Output CSV location (required)")
	cmd.Flags().IntVar(&opts.Count, "count", constants.DefaultGenerateCount, "Number of rows to generate")
	cmd.Flags().StringVar(&opts.Original, "original", "", "Original data for the leakage audit")
	cmd.Flags().StringVar(&opts.Anomalies, "anomalies", "", "JSON list of anomalies to inject")

	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("output")

	return cmd
}

func runGenerate(ctx context.Context, app *App, cmd *cobra.Command, opts *GenerateOptions) error {
	s, err := app.open()
	if err != nil {
		return err
	}
	defer s.close()

	result, err := pipeline.NewGenerator(s.rt).Run(ctx, pipeline.GenerateOptions{
		Model:     opts.Model,
		Output:    opts.Output,
		Count:     opts.Count,
		Original:  opts.Original,
		Anomalies: opts.Anomalies,
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Generated %d rows to %s\n", result.Written, opts.Output)
	if result.Leakage != nil && result.Leakage.Removed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Removed %d rows that matched the original data\n", result.Leakage.Removed)
	}
	return nil
}
