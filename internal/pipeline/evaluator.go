package pipeline

import (
	"context"
	"time"

	"github.com/inferloop/tabsynth/internal/quality"
	"github.com/inferloop/tabsynth/internal/synth"
	"github.com/inferloop/tabsynth/pkg/errors"
)

const commandEvaluate = "evaluate"

// EvaluateOptions are the inputs of the evaluate command
type EvaluateOptions struct {
	Model    string
	Original string
	Samples  int
}

// Evaluator scores fresh samples of a model against the original data
type Evaluator struct {
	rt     *Runtime
	scorer *quality.Scorer
}

// NewEvaluator creates an evaluate runner
func NewEvaluator(rt *Runtime) *Evaluator {
	return &Evaluator{rt: rt, scorer: quality.NewScorer(rt.Logger)}
}

// Run loads the original data and the model, samples and scores. Every
// failure is returned.
func (e *Evaluator) Run(ctx context.Context, opts EvaluateOptions) (*quality.Result, error) {
	logger := e.rt.Logger
	if opts.Samples < 0 {
		return nil, e.rt.fail(commandEvaluate, errors.NewInputError(errors.CodeInvalidParams, "samples cannot be negative"))
	}

	logger.WithField("original", opts.Original).Info("Loading original data")
	real, err := e.rt.LoadDataset(ctx, opts.Original)
	if err != nil {
		return nil, e.rt.fail(commandEvaluate, err)
	}

	logger.WithField("model", opts.Model).Info("Loading model")
	model, sidecar, err := synth.LoadModel(ctx, e.rt.Storage, e.rt.Synth, opts.Model, e.rt.Seed)
	if err != nil {
		return nil, e.rt.fail(commandEvaluate, err)
	}

	logger.WithField("samples", opts.Samples).Info("Generating synthetic samples for evaluation")
	start := time.Now()
	synthetic, err := model.Sample(ctx, opts.Samples)
	if err != nil {
		return nil, e.rt.fail(commandEvaluate, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeSamplingFailed,
			"Failed to generate samples"))
	}
	e.rt.Metrics.ObserveStage(commandEvaluate, "sample", start)
	e.rt.Metrics.RecordRowsSampled(string(sidecar.Kind), synthetic.Len())

	logger.Info("Evaluating synthetic data quality")
	start = time.Now()
	result, err := e.scorer.Score(real, synthetic, model.Metadata(), opts.Samples)
	if err != nil {
		return nil, e.rt.fail(commandEvaluate, errors.WrapError(err, errors.ErrorTypeEvaluation, errors.CodeEvaluationFailed,
			"Evaluation failed"))
	}
	e.rt.Metrics.ObserveStage(commandEvaluate, "score", start)

	e.rt.Metrics.SetQualityScore("overall", result.OverallQualityScore)
	e.rt.Metrics.SetQualityScore("column_shapes", result.ColumnShapesScore)
	e.rt.Metrics.SetQualityScore("column_pair_trends", result.ColumnPairTrendsScore)

	return result, nil
}
