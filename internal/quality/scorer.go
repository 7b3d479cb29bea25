package quality

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/synth"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/errors"
)

const scorePrecision = 4

// CustomMetrics are computed directly from the two datasets
type CustomMetrics struct {
	// Column order of the real data is kept in the JSON output
	MeanAbsoluteError     dataset.Record `json:"mean_absolute_error"`
	CorrelationSimilarity float64        `json:"correlation_similarity"`
}

// Result is the evaluate command payload
type Result struct {
	OverallQualityScore   float64       `json:"overall_quality_score"`
	ColumnShapesScore     float64       `json:"column_shapes_score"`
	ColumnPairTrendsScore float64       `json:"column_pair_trends_score"`
	CustomMetrics         CustomMetrics `json:"custom_metrics"`
	SampleCount           int           `json:"sample_count"`
}

// Scorer turns a quality report and the raw datasets into a Result
type Scorer struct {
	evaluator *Evaluator
	logger    *logrus.Logger
}

// NewScorer creates a scorer backed by a fresh Evaluator
func NewScorer(logger *logrus.Logger) *Scorer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scorer{evaluator: NewEvaluator(logger), logger: logger}
}

// Score evaluates synthetic against real. Any evaluator failure is returned.
func (s *Scorer) Score(real, synthetic *dataset.Dataset, md *synth.Metadata, sampleCount int) (*Result, error) {
	report, err := s.evaluator.Evaluate(real, synthetic, md)
	if err != nil {
		return nil, err
	}

	result := &Result{
		OverallQualityScore:   mathutil.Round(report.Score(), scorePrecision),
		ColumnShapesScore:     propertyScore(report, PropertyColumnShapes),
		ColumnPairTrendsScore: propertyScore(report, PropertyColumnPairTrends),
		CustomMetrics: CustomMetrics{
			MeanAbsoluteError: meanAbsoluteErrors(real, synthetic),
		},
		SampleCount: sampleCount,
	}

	numeric := real.NumericColumns()
	if len(numeric) > 1 {
		sim, err := correlationSimilarity(real, synthetic, numeric)
		if err != nil {
			return nil, err
		}
		result.CustomMetrics.CorrelationSimilarity = sim
	}

	s.logger.WithFields(logrus.Fields{
		"overall_quality_score": result.OverallQualityScore,
		"column_shapes":         result.ColumnShapesScore,
		"column_pair_trends":    result.ColumnPairTrendsScore,
	}).Info("Evaluation complete")

	return result, nil
}

func propertyScore(report *Report, property string) float64 {
	score := report.PropertyScore(property)
	if math.IsNaN(score) {
		return 0
	}
	return mathutil.Round(score, scorePrecision)
}

// meanAbsoluteErrors compares column means of every numeric real column that
// the synthetic data also carries
func meanAbsoluteErrors(real, synthetic *dataset.Dataset) dataset.Record {
	rec := dataset.Record{Keys: []string{}, Values: []interface{}{}}
	for _, i := range real.NumericColumns() {
		name := real.Columns[i].Name
		si := synthetic.ColumnIndex(name)
		if si < 0 {
			continue
		}
		realVals, synthVals := real.NonNullFloats(i), synthetic.NonNullFloats(si)
		if len(realVals) == 0 || len(synthVals) == 0 {
			continue
		}
		mae := math.Abs(mathutil.Mean(realVals) - mathutil.Mean(synthVals))
		rec.Keys = append(rec.Keys, name)
		rec.Values = append(rec.Values, mathutil.Round(mae, scorePrecision))
	}
	return rec
}

// correlationSimilarity is 1 minus the mean absolute difference of the two
// Pearson matrices. Undefined entries are left out of the mean.
func correlationSimilarity(real, synthetic *dataset.Dataset, numeric []int) (float64, error) {
	realCols := make([][]float64, len(numeric))
	synthCols := make([][]float64, len(numeric))
	for k, i := range numeric {
		name := real.Columns[i].Name
		si := synthetic.ColumnIndex(name)
		if si < 0 {
			return 0, errors.WrapError(errors.ErrColumnNotFound, errors.ErrorTypeEvaluation, errors.CodeEvaluationFailed,
				fmt.Sprintf("synthetic data has no column %q", name))
		}
		realCols[k] = real.Floats(i)
		synthCols[k] = synthetic.Floats(si)
	}

	realCorr := mathutil.CorrelationMatrix(realCols)
	synthCorr := mathutil.CorrelationMatrix(synthCols)

	// mean of per-column means, each skipping undefined entries
	total, columns := 0.0, 0
	for j := range realCorr {
		sum, n := 0.0, 0
		for i := range realCorr {
			d := math.Abs(realCorr[i][j] - synthCorr[i][j])
			if math.IsNaN(d) {
				continue
			}
			sum += d
			n++
		}
		if n > 0 {
			total += sum / float64(n)
			columns++
		}
	}
	if columns == 0 {
		return 0, nil
	}
	return mathutil.Round(1-total/float64(columns), scorePrecision), nil
}
