package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/privacy"
	"github.com/inferloop/tabsynth/internal/synth"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

const commandTrain = "train"

// TrainOptions are the inputs of the train command
type TrainOptions struct {
	Data            string
	Output          string
	Algorithm       synth.Kind
	Hyperparameters synth.Hyperparameters
}

// TrainResult summarises a finished training run
type TrainResult struct {
	RunID     string                   `json:"run_id"`
	Algorithm synth.Kind               `json:"algorithm"`
	Engine    string                   `json:"engine"`
	Rows      int                      `json:"rows"`
	Columns   int                      `json:"columns"`
	PII       []privacy.Classification `json:"pii"`
}

// Trainer fits a synthesizer on a dataset and stores the model
type Trainer struct {
	rt         *Runtime
	classifier *privacy.Classifier
}

// NewTrainer creates a trainer
func NewTrainer(rt *Runtime) *Trainer {
	return &Trainer{rt: rt, classifier: privacy.NewClassifier(rt.Logger)}
}

// Run loads the data, applies the privacy configuration, fits and saves
func (t *Trainer) Run(ctx context.Context, opts TrainOptions) (*TrainResult, error) {
	logger := t.rt.Logger
	if err := opts.Hyperparameters.Validate(); err != nil {
		return nil, t.rt.fail(commandTrain, err)
	}
	if !t.rt.Synth.IsSupported(opts.Algorithm) {
		return nil, t.rt.fail(commandTrain, errors.WrapError(errors.ErrInvalidAlgorithm, errors.ErrorTypeModel,
			errors.CodeInvalidAlgorithm, string(opts.Algorithm)))
	}

	if opts.Hyperparameters.Seed == 0 {
		opts.Hyperparameters.Seed = t.rt.Seed
	}

	start := time.Now()
	logger.WithField("data", opts.Data).Info("Loading data")
	data, err := t.rt.LoadDataset(ctx, opts.Data)
	if err != nil {
		return nil, t.rt.fail(commandTrain, err)
	}
	t.rt.Metrics.ObserveStage(commandTrain, "load", start)

	logger.Info("Detecting metadata")
	md, err := synth.DetectMetadata(data)
	if err != nil {
		return nil, t.rt.fail(commandTrain, err)
	}

	logger.Info("Applying privacy-safe configuration")
	flagged := t.protect(data, md)

	s, err := t.rt.Synth.Create(synth.Options{
		Kind:            opts.Algorithm,
		Metadata:        md,
		Hyperparameters: opts.Hyperparameters,
	})
	if err != nil {
		return nil, t.rt.fail(commandTrain, err)
	}

	fields := logrus.Fields{
		"algorithm": opts.Algorithm,
		"engine":    s.Engine(),
	}
	if opts.Algorithm.UsesEpochs() {
		fields["epochs"] = opts.Hyperparameters.Epochs
		fields["batch_size"] = opts.Hyperparameters.BatchSize
		fields["learning_rate"] = opts.Hyperparameters.LearningRate
	}
	logger.WithFields(fields).Info("Training model")

	start = time.Now()
	if err := s.Fit(ctx, data); err != nil {
		return nil, t.rt.fail(commandTrain, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeTrainingFailed,
			"Model fitting failed"))
	}
	t.rt.Metrics.ObserveStage(commandTrain, "fit", start)

	logger.WithField("output", opts.Output).Info("Saving model")
	start = time.Now()
	sidecar, err := synth.SaveModel(ctx, t.rt.Storage, opts.Output, s, opts.Hyperparameters, logger)
	if err != nil {
		return nil, t.rt.fail(commandTrain, err)
	}
	t.rt.Metrics.ObserveStage(commandTrain, "save", start)

	logger.WithField("run_id", sidecar.RunID).Info("Training complete and model saved")

	return &TrainResult{
		RunID:     sidecar.RunID,
		Algorithm: s.Kind(),
		Engine:    s.Engine(),
		Rows:      data.Len(),
		Columns:   data.Width(),
		PII:       flagged,
	}, nil
}

// protect classifies every column and remaps flagged ones to their PII
// sdtype. Remap failures are logged and the column keeps its detected type.
func (t *Trainer) protect(data *dataset.Dataset, md *synth.Metadata) []privacy.Classification {
	verdicts := t.classifier.Classify(columnInputs(data, md))

	var flagged []privacy.Classification
	for _, v := range verdicts {
		if !v.Sensitive() {
			continue
		}
		if err := md.UpdateColumn(v.Column, string(v.Tag)); err != nil {
			t.rt.Logger.WithFields(logrus.Fields{
				"column": v.Column,
				"tag":    v.Tag,
			}).WithError(err).Warn("Could not auto-configure PII for column")
			continue
		}
		t.rt.Metrics.RecordPIIColumn(string(v.Tag))
		flagged = append(flagged, v)
	}
	return flagged
}

// columnInputs pairs each column with its detected sdtype and first values
func columnInputs(data *dataset.Dataset, md *synth.Metadata) []privacy.ColumnInput {
	inputs := make([]privacy.ColumnInput, len(md.Columns))
	for i, cm := range md.Columns {
		inputs[i] = privacy.ColumnInput{
			Name:    cm.Name,
			SDType:  cm.SDType,
			Samples: privacy.SampleValues(data, data.ColumnIndex(cm.Name), constants.PIISampleValues),
		}
	}
	return inputs
}
