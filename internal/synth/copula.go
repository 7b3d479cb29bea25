package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/privacy"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

const (
	// Number of stored quantiles per continuous marginal
	maxQuantiles = 1001
	// Keeps normal quantiles finite
	uniformEpsilon = 1e-6
	maxDecimals    = 6
	// Rows between cancellation checks while sampling
	checkInterval = 1024
)

// shrinkage weights tried in order when the correlation matrix is not
// positive definite
var shrinkage = []float64{0, 0.01, 0.05, 0.1, 0.2, 0.4, 0.8, 1}

type copulaColumn struct {
	Name       string             `json:"name"`
	SDType     string             `json:"sdtype"`
	DType      dataset.ColumnType `json:"dtype"`
	PII        privacy.Tag        `json:"pii,omitempty"`
	Format     string             `json:"datetime_format,omitempty"`
	NullRate   float64            `json:"null_rate"`
	Quantiles  []float64          `json:"quantiles,omitempty"`
	Decimals   int                `json:"decimals,omitempty"`
	Categories []string           `json:"categories,omitempty"`
	Cumulative []float64          `json:"cumulative,omitempty"`
	Latent     int                `json:"latent"`
}

type copulaState struct {
	Kind        Kind           `json:"kind"`
	Metadata    *Metadata      `json:"metadata"`
	Columns     []copulaColumn `json:"columns"`
	Correlation []float64      `json:"correlation"`
	Dimensions  int            `json:"dimensions"`
	TrainRows   int            `json:"train_rows"`
}

// CopulaSynthesizer is a Gaussian copula over empirical marginals.
// Categorical columns are frequency encoded onto the unit interval and PII
// columns are left out of the fit and drawn from synthetic value generators.
type CopulaSynthesizer struct {
	kind   Kind
	params Hyperparameters
	state  *copulaState
	rng    *rand.Rand
	fakes  *privacy.SyntheticValueGenerator
	logger *logrus.Logger
}

// NewCopulaSynthesizer creates an unfitted copula model
func NewCopulaSynthesizer(opts Options, logger *logrus.Logger) *CopulaSynthesizer {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Kind == "" {
		opts.Kind = KindGaussianCopula
	}

	seed := opts.Hyperparameters.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	return &CopulaSynthesizer{
		kind:   opts.Kind,
		params: opts.Hyperparameters,
		state:  &copulaState{Kind: opts.Kind, Metadata: opts.Metadata},
		rng:    rng,
		fakes:  privacy.NewSyntheticValueGenerator(rng.Int63()|1, logger),
		logger: logger,
	}
}

// Kind returns the requested algorithm
func (c *CopulaSynthesizer) Kind() Kind {
	return c.kind
}

// Engine returns EngineCopula
func (c *CopulaSynthesizer) Engine() string {
	return EngineCopula
}

// Metadata returns the schema
func (c *CopulaSynthesizer) Metadata() *Metadata {
	return c.state.Metadata
}

// Fit learns the marginals and the latent correlation of data
func (c *CopulaSynthesizer) Fit(ctx context.Context, data *dataset.Dataset) error {
	if data == nil || data.Len() == 0 {
		return errors.WrapError(errors.ErrInsufficientData, errors.ErrorTypeModel, errors.CodeTrainingFailed,
			"training data has no rows")
	}

	md := c.state.Metadata
	if md == nil {
		detected, err := DetectMetadata(data)
		if err != nil {
			return err
		}
		md = detected
	}
	if err := md.Validate(data); err != nil {
		return err
	}

	start := time.Now()
	n := data.Len()
	columns := make([]copulaColumn, len(md.Columns))
	var latent [][]float64

	for i, cm := range md.Columns {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx := data.ColumnIndex(cm.Name)
		col := copulaColumn{
			Name:     cm.Name,
			SDType:   cm.SDType,
			DType:    data.Columns[idx].Type,
			Format:   cm.Format,
			NullRate: float64(data.NullCount(idx)) / float64(n),
			Latent:   -1,
		}

		if cm.PII {
			col.PII = privacy.Tag(cm.SDType)
			columns[i] = col
			continue
		}

		var z []float64
		var err error
		switch cm.SDType {
		case constants.SDTypeNumerical, constants.SDTypeDatetime:
			z, err = fitContinuous(&col, data, idx)
		case constants.SDTypeCategorical:
			z = fitCategorical(&col, data, idx)
		default:
			err = errors.WrapError(errors.ErrUnknownSDType, errors.ErrorTypeModel, errors.CodeTrainingFailed,
				fmt.Sprintf("column %q has unsupported sdtype %q", cm.Name, cm.SDType))
		}
		if err != nil {
			return err
		}

		if z != nil {
			col.Latent = len(latent)
			latent = append(latent, z)
		}
		columns[i] = col
	}

	c.state = &copulaState{
		Kind:        c.kind,
		Metadata:    md,
		Columns:     columns,
		Correlation: latentCorrelation(latent),
		Dimensions:  len(latent),
		TrainRows:   n,
	}

	c.logger.WithFields(logrus.Fields{
		"kind":       c.kind,
		"rows":       n,
		"columns":    len(columns),
		"dimensions": len(latent),
		"duration":   time.Since(start),
	}).Info("Fitted Gaussian copula")

	return nil
}

// fitContinuous stores the empirical quantiles of a numeric or datetime
// column and returns its normal scores. Nulls score 0.
func fitContinuous(col *copulaColumn, data *dataset.Dataset, idx int) ([]float64, error) {
	n := data.Len()
	raw := make([]float64, n)
	present := make([]bool, n)
	var values []float64

	for r, row := range data.Rows {
		v := row[idx]
		if v.IsNull() {
			continue
		}
		var x float64
		switch {
		case col.SDType == constants.SDTypeDatetime:
			if v.Kind != dataset.KindString {
				return nil, datetimeError(col.Name, v.Format(col.DType))
			}
			t, err := time.Parse(col.Format, strings.TrimSpace(v.Str))
			if err != nil {
				return nil, datetimeError(col.Name, v.Str)
			}
			x = float64(t.UnixNano()) / 1e9
		case v.Kind == dataset.KindNumber:
			x = v.Num
		default:
			return nil, errors.WrapError(errors.ErrModelTrainingFailed, errors.ErrorTypeModel, errors.CodeTrainingFailed,
				fmt.Sprintf("column %q holds non-numeric value %q", col.Name, v.Str))
		}
		raw[r] = x
		present[r] = true
		values = append(values, x)
	}

	if len(values) == 0 {
		return nil, nil
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	k := len(sorted)
	if k > maxQuantiles {
		k = maxQuantiles
	}
	col.Quantiles = make([]float64, k)
	if k == 1 {
		col.Quantiles[0] = sorted[0]
	} else {
		for q := 0; q < k; q++ {
			col.Quantiles[q] = mathutil.PercentileSorted(sorted, 100*float64(q)/float64(k-1))
		}
	}
	if col.SDType == constants.SDTypeNumerical && col.DType == dataset.TypeFloat64 {
		col.Decimals = decimals(values)
	}

	ranks := midranks(sorted)
	z := make([]float64, n)
	m := float64(len(sorted))
	for r := range raw {
		if !present[r] {
			continue
		}
		u := (ranks[raw[r]] + 0.5) / m
		z[r] = distuv.UnitNormal.Quantile(clampUnit(u))
	}
	return z, nil
}

func datetimeError(column, value string) error {
	return errors.WrapError(errors.ErrModelTrainingFailed, errors.ErrorTypeModel, errors.CodeTrainingFailed,
		fmt.Sprintf("column %q value %q does not match its datetime format", column, value))
}

// midranks maps each distinct value to the mean of its zero-based ranks
func midranks(sorted []float64) map[float64]float64 {
	ranks := make(map[float64]float64, len(sorted))
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[i] {
			j++
		}
		ranks[sorted[i]] = float64(i+j) / 2
		i = j + 1
	}
	return ranks
}

// decimals returns the largest number of fractional digits seen, capped
func decimals(values []float64) int {
	best := 0
	for _, v := range values {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if dot := strings.IndexByte(s, '.'); dot >= 0 {
			if d := len(s) - dot - 1; d > best {
				best = d
			}
		}
		if best >= maxDecimals {
			return maxDecimals
		}
	}
	return best
}

// fitCategorical orders categories by frequency, most frequent first with
// ties in order of first appearance, and scores each row at the midpoint of
// its category's interval.
func fitCategorical(col *copulaColumn, data *dataset.Dataset, idx int) []float64 {
	counts := make(map[string]int)
	var order []string
	for _, row := range data.Rows {
		v := row[idx]
		if v.IsNull() {
			continue
		}
		key := v.Format(col.DType)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	if len(order) == 0 {
		return nil
	}

	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]] > counts[order[b]]
	})

	total := 0
	for _, c := range counts {
		total += c
	}

	col.Categories = order
	col.Cumulative = make([]float64, len(order))
	mid := make(map[string]float64, len(order))
	lower := 0.0
	for k, cat := range order {
		upper := lower + float64(counts[cat])/float64(total)
		if k == len(order)-1 {
			upper = 1
		}
		col.Cumulative[k] = upper
		mid[cat] = distuv.UnitNormal.Quantile(clampUnit((lower + upper) / 2))
		lower = upper
	}

	z := make([]float64, data.Len())
	for r, row := range data.Rows {
		if v := row[idx]; !v.IsNull() {
			z[r] = mid[v.Format(col.DType)]
		}
	}
	return z
}

// latentCorrelation returns the row-major Pearson correlation of the normal
// scores. Undefined entries are 0 and the diagonal is 1.
func latentCorrelation(latent [][]float64) []float64 {
	d := len(latent)
	out := make([]float64, d*d)
	for i := 0; i < d; i++ {
		out[i*d+i] = 1
		for j := i + 1; j < d; j++ {
			r := stat.Correlation(latent[i], latent[j], nil)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				r = 0
			}
			out[i*d+j] = r
			out[j*d+i] = r
		}
	}
	return out
}

// choleskyFactor factorizes the correlation matrix, shrinking it toward the
// identity until it is positive definite.
func choleskyFactor(corr []float64, d int) (*mat.TriDense, float64) {
	for _, lambda := range shrinkage {
		data := make([]float64, d*d)
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				v := (1 - lambda) * corr[i*d+j]
				if i == j {
					v = 1
				}
				data[i*d+j] = v
			}
		}
		var chol mat.Cholesky
		if chol.Factorize(mat.NewSymDense(d, data)) {
			var l mat.TriDense
			chol.LTo(&l)
			return &l, lambda
		}
	}
	// unreachable: the identity always factorizes
	return nil, 1
}

// Sample draws n rows
func (c *CopulaSynthesizer) Sample(ctx context.Context, n int) (*dataset.Dataset, error) {
	if c.state == nil || c.state.Columns == nil {
		return nil, errors.WrapError(errors.ErrModelNotFitted, errors.ErrorTypeModel, errors.CodeSamplingFailed,
			"cannot sample")
	}
	if n < 0 {
		return nil, errors.NewModelError(errors.CodeSamplingFailed, fmt.Sprintf("invalid row count %d", n))
	}

	d := c.state.Dimensions
	var l *mat.TriDense
	if d > 0 {
		var lambda float64
		l, lambda = choleskyFactor(c.state.Correlation, d)
		if lambda > 0 {
			c.logger.WithField("shrinkage", lambda).Warn("Latent correlation was not positive definite, shrunk toward identity")
		}
	}

	columns := make([]dataset.Column, len(c.state.Columns))
	for i, col := range c.state.Columns {
		columns[i] = dataset.Column{Name: col.Name, Type: col.DType}
	}

	rows := make([][]dataset.Value, n)
	e := mat.NewVecDense(max(d, 1), nil)
	var z mat.VecDense
	for r := 0; r < n; r++ {
		if r%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if d > 0 {
			for k := 0; k < d; k++ {
				e.SetVec(k, c.rng.NormFloat64())
			}
			z.MulVec(l, e)
		}

		row := make([]dataset.Value, len(c.state.Columns))
		for i := range c.state.Columns {
			col := &c.state.Columns[i]
			v, err := c.sampleCell(col, &z)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		rows[r] = row
	}

	out, err := dataset.New(columns, rows)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeSamplingFailed, "failed to assemble samples")
	}
	for i := range out.Columns {
		out.Retype(i)
	}

	c.logger.WithFields(logrus.Fields{
		"kind": c.kind,
		"rows": n,
	}).Debug("Sampled synthetic rows")

	return out, nil
}

func (c *CopulaSynthesizer) sampleCell(col *copulaColumn, z *mat.VecDense) (dataset.Value, error) {
	if col.PII != privacy.TagNone {
		v, err := c.fakes.Generate(col.PII)
		if err != nil {
			return dataset.Null(), errors.WrapError(err, errors.ErrorTypeModel, errors.CodeSamplingFailed,
				fmt.Sprintf("failed to generate synthetic values for %q", col.Name))
		}
		if col.DType == dataset.TypeObject && v.IsNumber() {
			return dataset.String(v.Format(dataset.TypeObject)), nil
		}
		return v, nil
	}

	if col.Latent < 0 {
		return dataset.Null(), nil
	}
	u := distuv.UnitNormal.CDF(z.AtVec(col.Latent))
	if col.NullRate > 0 && c.rng.Float64() < col.NullRate {
		return dataset.Null(), nil
	}

	switch col.SDType {
	case constants.SDTypeCategorical:
		return categoryValue(col, u)
	case constants.SDTypeDatetime:
		secs := quantileValue(col.Quantiles, u)
		whole, frac := math.Modf(secs)
		t := time.Unix(int64(whole), int64(frac*1e9)).UTC()
		return dataset.String(t.Format(col.Format)), nil
	default:
		x := quantileValue(col.Quantiles, u)
		if col.DType == dataset.TypeInt64 {
			x = math.Round(x)
		} else {
			x = mathutil.Round(x, col.Decimals)
		}
		return dataset.Number(x), nil
	}
}

// quantileValue inverts a marginal stored as equally spaced quantiles
func quantileValue(q []float64, u float64) float64 {
	if len(q) == 1 {
		return q[0]
	}
	pos := clampUnit(u) * float64(len(q)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return q[lo]
	}
	w := pos - float64(lo)
	return q[lo]*(1-w) + q[hi]*w
}

func categoryValue(col *copulaColumn, u float64) (dataset.Value, error) {
	k := sort.SearchFloat64s(col.Cumulative, u)
	if k >= len(col.Categories) {
		k = len(col.Categories) - 1
	}
	if k < len(col.Cumulative) && col.Cumulative[k] == u && k+1 < len(col.Categories) {
		k++
	}
	cat := col.Categories[k]
	if col.DType.IsNumeric() {
		f, err := strconv.ParseFloat(cat, 64)
		if err != nil {
			return dataset.Null(), errors.WrapError(err, errors.ErrorTypeModel, errors.CodeSamplingFailed,
				fmt.Sprintf("corrupt category %q in column %q", cat, col.Name))
		}
		return dataset.Number(f), nil
	}
	return dataset.String(cat), nil
}

func clampUnit(u float64) float64 {
	if u < uniformEpsilon {
		return uniformEpsilon
	}
	if u > 1-uniformEpsilon {
		return 1 - uniformEpsilon
	}
	return u
}

// Marshal encodes the fitted model as JSON
func (c *CopulaSynthesizer) Marshal() ([]byte, error) {
	if c.state == nil || c.state.Columns == nil {
		return nil, errors.WrapError(errors.ErrModelNotFitted, errors.ErrorTypeModel, errors.CodeModelSaveFailed,
			"cannot serialize")
	}
	data, err := json.Marshal(c.state)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeModelSaveFailed, "failed to encode copula model")
	}
	return data, nil
}

// Unmarshal restores a model encoded by Marshal
func (c *CopulaSynthesizer) Unmarshal(data []byte) error {
	var state copulaState
	if err := json.Unmarshal(data, &state); err != nil {
		return errors.WrapError(err, errors.ErrorTypeModel, errors.CodeModelLoadFailed, "failed to decode copula model")
	}
	if state.Columns == nil || len(state.Correlation) != state.Dimensions*state.Dimensions {
		return errors.WrapError(errors.ErrModelLoadFailed, errors.ErrorTypeModel, errors.CodeModelLoadFailed,
			"copula model is incomplete")
	}
	for _, col := range state.Columns {
		if col.Latent >= state.Dimensions {
			return errors.WrapError(errors.ErrModelLoadFailed, errors.ErrorTypeModel, errors.CodeModelLoadFailed,
				fmt.Sprintf("column %q refers to latent dimension %d of %d", col.Name, col.Latent, state.Dimensions))
		}
	}
	if state.Kind != "" {
		c.kind = state.Kind
	}
	c.state = &state
	return nil
}
