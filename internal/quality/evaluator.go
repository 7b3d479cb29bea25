// Package quality scores how closely a synthetic table follows the real one.
package quality

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/synth"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// Property names of a quality report
const (
	PropertyColumnShapes     = "Column Shapes"
	PropertyColumnPairTrends = "Column Pair Trends"
)

// Metric names recorded on breakdown rows
const (
	MetricKSComplement          = "KSComplement"
	MetricTVComplement          = "TVComplement"
	MetricCorrelationSimilarity = "CorrelationSimilarity"
	MetricContingencySimilarity = "ContingencySimilarity"
)

// Number of equal-width buckets continuous columns are cut into for
// contingency tables
const contingencyBins = 10

// Detail is one breakdown row of a property
type Detail struct {
	Columns              []string `json:"columns"`
	Metric               string   `json:"metric"`
	Score                float64  `json:"Score"`
	RealCorrelation      *float64 `json:"real_correlation,omitempty"`
	SyntheticCorrelation *float64 `json:"synthetic_correlation,omitempty"`
}

// Report holds the per-property breakdowns of one evaluation
type Report struct {
	properties map[string][]Detail
}

// Details returns the breakdown rows of a property
func (r *Report) Details(property string) ([]Detail, error) {
	rows, ok := r.properties[property]
	if !ok {
		return nil, errors.NewEvaluationError(errors.CodeEvaluationFailed,
			fmt.Sprintf("unknown property %q", property))
	}
	return rows, nil
}

// PropertyScore is the mean score of a property's breakdown, NaN when empty
func (r *Report) PropertyScore(property string) float64 {
	rows := r.properties[property]
	if len(rows) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, row := range rows {
		sum += row.Score
	}
	return sum / float64(len(rows))
}

// Score is the mean of the defined property scores, 0 when none is defined
func (r *Report) Score() float64 {
	sum, n := 0.0, 0
	for _, p := range []string{PropertyColumnShapes, PropertyColumnPairTrends} {
		if s := r.PropertyScore(p); !math.IsNaN(s) {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Evaluator compares a synthetic dataset against the real one
type Evaluator struct {
	logger *logrus.Logger
}

// NewEvaluator creates a new evaluator
func NewEvaluator(logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Evaluator{logger: logger}
}

// evalColumn is one non-PII column aligned across both datasets
type evalColumn struct {
	meta       synth.ColumnMetadata
	continuous bool
	real       []float64
	synthetic  []float64
	realVals   []dataset.Value
	synthVals  []dataset.Value
}

// Evaluate builds the quality report. PII columns are regenerated from
// scratch and are not scored.
func (e *Evaluator) Evaluate(real, synthetic *dataset.Dataset, md *synth.Metadata) (*Report, error) {
	if real == nil || synthetic == nil || md == nil {
		return nil, errors.NewEvaluationError(errors.CodeEvaluationFailed, "real data, synthetic data and metadata are required")
	}
	if real.Len() == 0 || synthetic.Len() == 0 {
		return nil, errors.WrapError(errors.ErrEmptyDataset, errors.ErrorTypeEvaluation, errors.CodeEvaluationFailed,
			"cannot evaluate an empty dataset")
	}

	var columns []evalColumn
	for _, cm := range md.Columns {
		if cm.PII {
			continue
		}
		ri, si := real.ColumnIndex(cm.Name), synthetic.ColumnIndex(cm.Name)
		if ri < 0 || si < 0 {
			return nil, errors.WrapError(errors.ErrColumnNotFound, errors.ErrorTypeEvaluation, errors.CodeEvaluationFailed,
				fmt.Sprintf("column %q is missing from the real or synthetic data", cm.Name))
		}
		col := evalColumn{
			meta:      cm,
			realVals:  real.ColumnValues(ri),
			synthVals: synthetic.ColumnValues(si),
		}
		switch cm.SDType {
		case constants.SDTypeNumerical:
			col.continuous = true
			col.real = real.Floats(ri)
			col.synthetic = synthetic.Floats(si)
		case constants.SDTypeDatetime:
			col.continuous = true
			col.real = timestamps(col.realVals, cm.Format)
			col.synthetic = timestamps(col.synthVals, cm.Format)
		}
		columns = append(columns, col)
	}

	report := &Report{properties: map[string][]Detail{
		PropertyColumnShapes:     e.columnShapes(columns),
		PropertyColumnPairTrends: e.columnPairTrends(columns),
	}}

	e.logger.WithFields(logrus.Fields{
		"columns": len(columns),
		"shapes":  len(report.properties[PropertyColumnShapes]),
		"pairs":   len(report.properties[PropertyColumnPairTrends]),
		"score":   report.Score(),
	}).Debug("Quality report built")

	return report, nil
}

func (e *Evaluator) columnShapes(columns []evalColumn) []Detail {
	rows := make([]Detail, 0, len(columns))
	for _, col := range columns {
		var score float64
		metric := MetricTVComplement
		if col.continuous {
			metric = MetricKSComplement
			score = KSComplement(finite(col.real), finite(col.synthetic))
		} else {
			score = TVComplement(col.realVals, col.synthVals)
		}
		if math.IsNaN(score) {
			e.logger.WithFields(logrus.Fields{
				"column": col.meta.Name,
				"metric": metric,
			}).Debug("Skipping column without observations")
			continue
		}
		rows = append(rows, Detail{Columns: []string{col.meta.Name}, Metric: metric, Score: score})
	}
	return rows
}

func (e *Evaluator) columnPairTrends(columns []evalColumn) []Detail {
	var rows []Detail
	for i := 0; i < len(columns); i++ {
		for j := i + 1; j < len(columns); j++ {
			a, b := columns[i], columns[j]
			names := []string{a.meta.Name, b.meta.Name}

			if a.continuous && b.continuous {
				rr := mathutil.Correlation(a.real, b.real)
				rs := mathutil.Correlation(a.synthetic, b.synthetic)
				if math.IsNaN(rr) || math.IsNaN(rs) {
					e.logger.WithField("columns", strings.Join(names, ",")).Debug("Skipping pair with undefined correlation")
					continue
				}
				rows = append(rows, Detail{
					Columns:              names,
					Metric:               MetricCorrelationSimilarity,
					Score:                1 - math.Abs(rr-rs)/2,
					RealCorrelation:      &rr,
					SyntheticCorrelation: &rs,
				})
				continue
			}

			score := contingencySimilarity(a, b)
			if math.IsNaN(score) {
				e.logger.WithField("columns", strings.Join(names, ",")).Debug("Skipping pair without joint observations")
				continue
			}
			rows = append(rows, Detail{Columns: names, Metric: MetricContingencySimilarity, Score: score})
		}
	}
	return rows
}

// contingencySimilarity compares the joint frequency tables of two columns.
// Continuous columns are bucketed on the real data's range.
func contingencySimilarity(a, b evalColumn) float64 {
	realA, synthA := categories(a)
	realB, synthB := categories(b)
	p := jointFrequencies(realA, realB)
	q := jointFrequencies(synthA, synthB)
	if p == nil || q == nil {
		return math.NaN()
	}
	return 1 - totalVariation(p, q)
}

// categories returns discrete keys for both sides of a column, "" for nulls
func categories(col evalColumn) ([]string, []string) {
	if !col.continuous {
		return valueKeys(col.realVals), valueKeys(col.synthVals)
	}
	observed := finite(col.real)
	if len(observed) == 0 {
		return make([]string, len(col.real)), make([]string, len(col.synthetic))
	}
	lo, hi := mathutil.MinMax(observed)
	return bucketKeys(col.real, lo, hi), bucketKeys(col.synthetic, lo, hi)
}

func valueKeys(values []dataset.Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if !v.IsNull() {
			out[i] = v.Key()
		}
	}
	return out
}

func bucketKeys(values []float64, lo, hi float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * contingencyBins)
		}
		if idx < 0 {
			idx = 0
		}
		if idx >= contingencyBins {
			idx = contingencyBins - 1
		}
		out[i] = fmt.Sprintf("b%d", idx)
	}
	return out
}

func jointFrequencies(a, b []string) map[string]float64 {
	counts := make(map[string]float64)
	total := 0.0
	for i := range a {
		if a[i] == "" || b[i] == "" {
			continue
		}
		counts[a[i]+"\x1f"+b[i]]++
		total++
	}
	if total == 0 {
		return nil
	}
	for k := range counts {
		counts[k] /= total
	}
	return counts
}

// timestamps parses datetime cells to unix seconds, NaN when unparseable
func timestamps(values []dataset.Value, layout string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.NaN()
		if v.Kind != dataset.KindString || layout == "" {
			continue
		}
		if t, err := time.Parse(layout, strings.TrimSpace(v.Str)); err == nil {
			out[i] = float64(t.Unix())
		}
	}
	return out
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
