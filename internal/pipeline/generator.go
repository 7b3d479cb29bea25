package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/privacy"
	"github.com/inferloop/tabsynth/internal/synth"
	"github.com/inferloop/tabsynth/pkg/errors"
)

const commandGenerate = "generate"

// GenerateOptions are the inputs of the generate command
type GenerateOptions struct {
	Model  string
	Output string
	Count  int
	// Original enables the leakage audit when it names existing data
	Original string
	// Anomalies is the raw JSON anomaly list; empty disables injection
	Anomalies string
}

// GenerateResult summarises a finished generation run
type GenerateResult struct {
	Requested int                       `json:"requested"`
	Written   int                       `json:"written"`
	Leakage   *privacy.LeakageReport    `json:"leakage,omitempty"`
	Anomalies []privacy.InjectionResult `json:"anomalies,omitempty"`
}

// Generator samples a stored model into a CSV
type Generator struct {
	rt *Runtime
}

// NewGenerator creates a generator
func NewGenerator(rt *Runtime) *Generator {
	return &Generator{rt: rt}
}

// Run loads the model, samples, audits for leakage, injects anomalies and
// writes the result
func (g *Generator) Run(ctx context.Context, opts GenerateOptions) (*GenerateResult, error) {
	logger := g.rt.Logger
	if opts.Count < 0 {
		return nil, g.rt.fail(commandGenerate, errors.NewInputError(errors.CodeInvalidParams, "count cannot be negative"))
	}

	logger.WithField("model", opts.Model).Info("Loading model")
	start := time.Now()
	model, sidecar, err := synth.LoadModel(ctx, g.rt.Storage, g.rt.Synth, opts.Model, g.rt.Seed)
	if err != nil {
		return nil, g.rt.fail(commandGenerate, err)
	}
	g.rt.Metrics.ObserveStage(commandGenerate, "load", start)

	original, err := g.loadOriginal(ctx, opts.Original)
	if err != nil {
		return nil, g.rt.fail(commandGenerate, err)
	}

	logger.WithFields(logrus.Fields{
		"count":     opts.Count,
		"algorithm": sidecar.Kind,
		"engine":    sidecar.Engine,
	}).Info("Generating synthetic records")
	start = time.Now()
	samples, err := model.Sample(ctx, opts.Count)
	if err != nil {
		return nil, g.rt.fail(commandGenerate, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeSamplingFailed,
			"Failed to generate samples"))
	}
	g.rt.Metrics.ObserveStage(commandGenerate, "sample", start)
	g.rt.Metrics.RecordRowsSampled(string(sidecar.Kind), samples.Len())

	result := &GenerateResult{Requested: opts.Count}

	if original != nil {
		logger.Info("Performing leakage audit")
		var report *privacy.LeakageReport
		samples, report = privacy.NewLeakageAuditor(logger).Audit(samples, original)
		g.rt.Metrics.RecordLeakedRows(report.Removed)
		result.Leakage = report
	}

	if opts.Anomalies != "" {
		samples, result.Anomalies = g.injectAnomalies(samples, opts.Anomalies)
	}

	logger.WithField("output", opts.Output).Info("Saving synthetic data")
	if err := g.rt.WriteDataset(ctx, opts.Output, samples); err != nil {
		return nil, g.rt.fail(commandGenerate, err)
	}

	result.Written = samples.Len()
	logger.WithField("rows", result.Written).Info("Generation complete")
	return result, nil
}

// loadOriginal returns the dataset used for the leakage audit, or nil when
// location is empty, missing or holds no rows. A failed existence check is
// an error, not a missing file.
func (g *Generator) loadOriginal(ctx context.Context, location string) (*dataset.Dataset, error) {
	if location == "" {
		return nil, nil
	}

	exists, err := g.rt.DatasetExists(ctx, location)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("Failed to check original data at %s", location))
	}
	if !exists {
		g.rt.Logger.WithField("original", location).Warn("Original data not found, skipping leakage audit")
		return nil, nil
	}

	g.rt.Logger.WithField("original", location).Info("Loading original data for leakage protection")
	original, err := g.rt.LoadDataset(ctx, location)
	if err != nil {
		return nil, err
	}
	if original.Len() == 0 {
		return nil, nil
	}
	return original, nil
}

// injectAnomalies applies the anomaly list. Malformed JSON skips injection.
func (g *Generator) injectAnomalies(samples *dataset.Dataset, raw string) (*dataset.Dataset, []privacy.InjectionResult) {
	specs, err := privacy.ParseAnomalySpecs(raw)
	if err != nil {
		g.rt.Logger.WithError(err).Warn("Failed to parse anomaly JSON")
		return samples, nil
	}
	if len(specs) == 0 {
		return samples, nil
	}

	g.rt.Logger.WithField("entries", len(specs)).Info("Applying anomalies")
	out, results := privacy.NewAnomalyInjector(g.rt.rng(), g.rt.Logger).Inject(samples, specs)
	for _, r := range results {
		if !r.Skipped {
			g.rt.Metrics.RecordAnomalies(string(r.Kind), r.Applied)
		}
	}
	return out, results
}
