package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsynth/internal/pipeline"
	"github.com/inferloop/tabsynth/pkg/constants"
)

type EvaluateOptions struct {
	Model    string
	Original string
	Samples  int
}

func NewEvaluateCmd(app *App) *cobra.Command {
	opts := &EvaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a model's samples against the original data",
		Long: `Draw fresh samples from a trained model and compare them with the
original data. Prints the quality report as JSON.`,
		Example: `  tabsynth evaluate --model model.pkl --original customers.csv
  tabsynth evaluate --model model.pkl --original customers.csv --samples 5000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.Context(), app, cmd, opts)
		},
	}

	// Add flags
	cmd.Flags().StringVar(&opts.Model, "model", "", "Trained model location (required)")
	cmd.Flags().StringVar(&opts.Original, "original", "", "Original data location (required)")
	cmd.Flags().IntVar(&opts.Samples, "samples", constants.DefaultEvalSamples, "Number of synthetic rows to score")

	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("original")

	return cmd
}

func runEvaluate(ctx context.Context, app *App, cmd *cobra.Command, opts *EvaluateOptions) error {
	s, err := app.open()
	if err != nil {
		return err
	}
	defer s.close()

	result, err := pipeline.NewEvaluator(s.rt).Run(ctx, pipeline.EvaluateOptions{
		Model:    opts.Model,
		Original: opts.Original,
		Samples:  opts.Samples,
	})
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	return printJSON(cmd.OutOrStdout(), result)
}
