package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsynth/internal/pipeline"
	"github.com/inferloop/tabsynth/internal/synth"
	"github.com/inferloop/tabsynth/pkg/constants"
)

type TrainOptions struct {
	Data               string
	Output             string
	Algorithm          string
	Epochs             int
	BatchSize          int
	LearningRate       float64
	DiscriminatorSteps int
	GeneratorDim       string
	DiscriminatorDim   string
}

func NewTrainCmd(app *App) *cobra.Command {
	opts := &TrainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a synthesizer on a tabular dataset",
		Long: `Train a synthesizer on a CSV file or database table. Columns holding
personal data are detected and configured to be replaced by synthetic values
before fitting.`,
		Example: `  # Train the default CTGAN model
  tabsynth train --data customers.csv --output models/customers.pkl

  # Train a Gaussian copula stored in S3
  tabsynth train --data customers.csv --output s3://models/customers.pkl --algorithm GaussianCopula

  # Custom network sizes
  tabsynth train --data customers.csv --output model.pkl --epochs 500 --generator_dim 128,128`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd.Context(), app, cmd, opts)
		},
	}

	// Add flags
	cmd.Flags().StringVar(&opts.Data, "data", "", "Training data location (required)")
	cmd.Flags().StringVar(&opts.Output, "output", "", "Model output location (required)")
	cmd.Flags().StringVar(&opts.Algorithm, "algorithm", constants.DefaultAlgorithm, "Algorithm (CTGAN, TVAE, GaussianCopula, CopulaGAN)")
	cmd.Flags().IntVar(&opts.Epochs, "epochs", constants.DefaultEpochs, "Training epochs")
	cmd.Flags().IntVar(&opts.BatchSize, "batch_size", constants.DefaultBatchSize, "Batch size")
	cmd.Flags().Float64Var(&opts.LearningRate, "learning_rate", constants.DefaultLearningRate, "Learning rate")
	cmd.Flags().IntVar(&opts.DiscriminatorSteps, "discriminator_steps", constants.DefaultDiscriminatorSteps, "Discriminator steps per generator step")
	cmd.Flags().StringVar(&opts.GeneratorDim, "generator_dim", "", "Generator layer sizes, e.g. 256,256")
	cmd.Flags().StringVar(&opts.DiscriminatorDim, "discriminator_dim", "", "Discriminator layer sizes, e.g. 256,256")

	cmd.MarkFlagRequired("data")
	cmd.MarkFlagRequired("output")

	return cmd
}

func (o *TrainOptions) hyperparameters() (synth.Hyperparameters, error) {
	params := synth.Hyperparameters{
		Epochs:             o.Epochs,
		BatchSize:          o.BatchSize,
		LearningRate:       o.LearningRate,
		DiscriminatorSteps: o.DiscriminatorSteps,
	}

	var err error
	if params.GeneratorDim, err = synth.ParseDims(o.GeneratorDim); err != nil {
		return params, fmt.Errorf("invalid --generator_dim: %w", err)
	}
	if params.DiscriminatorDim, err = synth.ParseDims(o.DiscriminatorDim); err != nil {
		return params, fmt.Errorf("invalid --discriminator_dim: %w", err)
	}
	return params, nil
}

func runTrain(ctx context.Context, app *App, cmd *cobra.Command, opts *TrainOptions) error {
	kind, err := synth.ParseKind(opts.Algorithm)
	if err != nil {
		return err
	}
	params, err := opts.hyperparameters()
	if err != nil {
		return err
	}

	s, err := app.open()
	if err != nil {
		return err
	}
	defer s.close()

	result, err := pipeline.NewTrainer(s.rt).Run(ctx, pipeline.TrainOptions{
		Data:            opts.Data,
		Output:          opts.Output,
		Algorithm:       kind,
		Hyperparameters: params,
	})
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Model saved to %s (run %s, %d rows, %d PII columns)\n",
		opts.Output, result.RunID, result.Rows, len(result.PII))
	return nil
}
