// Package profile computes the descriptive statistics used to visualise a
// dataset: per-column summaries, a correlation matrix, a scatter sample and
// coarse column roles.
package profile

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/constants"
)

// Report is the profile of one dataset
type Report struct {
	RowCount    int             `json:"rowCount"`
	ColumnCount int             `json:"columnCount"`
	Columns     []ColumnProfile `json:"columns"`
	Correlation *Correlation    `json:"correlation,omitempty"`
	// Sample is nil only when sampling failed; an empty dataset yields []
	Sample   *[]dataset.Record `json:"sample,omitempty"`
	Metadata Roles             `json:"metadata"`
}

// ErrorReport is emitted instead of a Report when the input cannot be read
type ErrorReport struct {
	Error string `json:"error"`
}

// ColumnProfile describes one column
type ColumnProfile struct {
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	NullPercentage float64         `json:"nullPercentage"`
	UniqueCount    int             `json:"uniqueCount"`
	Distribution   *Distribution   `json:"distribution,omitempty"`
	Stats          *NumericSummary `json:"stats,omitempty"`
}

// Distribution is a labelled frequency table or histogram
type Distribution struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

// NumericSummary holds location statistics over non-null values
type NumericSummary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Correlation is a square Pearson matrix over the numeric columns
type Correlation struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// Roles groups columns by how a dashboard should plot them
type Roles struct {
	DatetimeCols    []string `json:"datetimeCols"`
	GeoCols         GeoCols  `json:"geoCols"`
	CategoricalCols []string `json:"categoricalCols"`
	NumericalCols   []string `json:"numericalCols"`
}

// GeoCols names the first latitude, longitude and place columns, if any
type GeoCols struct {
	Lat  *string `json:"lat"`
	Lng  *string `json:"lng"`
	City *string `json:"city"`
}

var (
	datetimeHints = []string{"date", "time", "year"}
	latNames      = []string{"lat", "latitude"}
	lngNames      = []string{"lng", "longitude", "long"}
	placeHints    = []string{"city", "location", "town", "country", "region", "state", "land"}
)

// Profiler computes dataset profiles
type Profiler struct {
	logger *logrus.Logger
	rng    *rand.Rand
}

// NewProfiler creates a profiler. A nil rng uses a time-seeded source.
func NewProfiler(logger *logrus.Logger, rng *rand.Rand) *Profiler {
	if logger == nil {
		logger = logrus.New()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Profiler{logger: logger, rng: rng}
}

// ProfileCSV loads raw CSV bytes with the fallback chain and profiles them.
// It returns either a *Report or an *ErrorReport, never both.
func (p *Profiler) ProfileCSV(data []byte) (*Report, *ErrorReport) {
	ds, err := dataset.LoadWithFallback(data, p.logger)
	if err != nil {
		p.logger.WithError(err).Debug("All CSV read attempts failed")
		return nil, &ErrorReport{Error: fmt.Sprintf("Failed to parse CSV: %v", err)}
	}
	return p.Profile(ds), nil
}

// Profile computes the full report for ds
func (p *Profiler) Profile(ds *dataset.Dataset) *Report {
	report := &Report{
		RowCount:    ds.Len(),
		ColumnCount: ds.Width(),
		Columns:     make([]ColumnProfile, 0, ds.Width()),
	}

	for i := range ds.Columns {
		report.Columns = append(report.Columns, p.profileColumn(ds, i))
	}

	p.section("correlation", func() {
		report.Correlation = correlation(ds)
	})

	p.section("sample", func() {
		sample := p.sample(ds)
		report.Sample = &sample
	})

	report.Metadata = roles(ds)

	return report
}

// section runs one optional part of the report; a failure is logged and the
// part is left out.
func (p *Profiler) section(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"section": name,
				"error":   r,
			}).Warn("Profile section failed")
		}
	}()
	fn()
}

func (p *Profiler) profileColumn(ds *dataset.Dataset, i int) ColumnProfile {
	col := ds.Columns[i]
	nulls := ds.NullCount(i)
	unique := ds.UniqueCount(i)

	prof := ColumnProfile{
		Name:        col.Name,
		Type:        string(col.Type),
		UniqueCount: unique,
	}
	if ds.Len() > 0 {
		prof.NullPercentage = mathutil.Round(float64(nulls)/float64(ds.Len())*100, 2)
	}

	if !col.Type.IsNumeric() || unique < constants.CategoricalUniqueThreshold {
		prof.Distribution = topValues(ds, i, constants.TopCategories)
		return prof
	}

	values := ds.NonNullFloats(i)
	if len(values) == 0 {
		return prof
	}

	lo, hi := mathutil.MinMax(values)
	prof.Stats = &NumericSummary{
		Min:    lo,
		Max:    hi,
		Mean:   mathutil.Mean(values),
		Median: mathutil.Median(values),
	}

	counts, edges := mathutil.Histogram(values, constants.HistogramBins)
	dist := &Distribution{
		Labels: make([]string, len(counts)),
		Values: counts,
	}
	for b := range counts {
		dist.Labels[b] = mathutil.FormatFloat(mathutil.Round(edges[b], 2)) + "-" +
			mathutil.FormatFloat(mathutil.Round(edges[b+1], 2))
	}
	prof.Distribution = dist

	return prof
}

// topValues returns the n most frequent non-null values, ties in order of
// first appearance.
func topValues(ds *dataset.Dataset, i, n int) *Distribution {
	type bucket struct {
		label string
		count int
	}

	index := make(map[string]int)
	var buckets []bucket
	for _, v := range ds.NonNull(i) {
		key := v.Key()
		if at, ok := index[key]; ok {
			buckets[at].count++
			continue
		}
		index[key] = len(buckets)
		buckets = append(buckets, bucket{label: v.Format(ds.Columns[i].Type), count: 1})
	}

	sort.SliceStable(buckets, func(a, b int) bool {
		return buckets[a].count > buckets[b].count
	})
	if len(buckets) > n {
		buckets = buckets[:n]
	}

	dist := &Distribution{
		Labels: make([]string, len(buckets)),
		Values: make([]int, len(buckets)),
	}
	for k, b := range buckets {
		dist.Labels[k] = b.label
		dist.Values[k] = b.count
	}
	return dist
}

func correlation(ds *dataset.Dataset) *Correlation {
	numeric := ds.NumericColumns()
	if len(numeric) < 2 {
		return nil
	}

	columns := make([][]float64, len(numeric))
	names := make([]string, len(numeric))
	for k, i := range numeric {
		columns[k] = ds.Floats(i)
		names[k] = ds.Columns[i].Name
	}

	matrix := mathutil.CorrelationMatrix(columns)
	for r := range matrix {
		for c := range matrix[r] {
			v := matrix[r][c]
			if math.IsNaN(v) {
				v = 0
			}
			matrix[r][c] = mathutil.Round(v, 2)
		}
	}

	return &Correlation{Columns: names, Values: matrix}
}

func (p *Profiler) sample(ds *dataset.Dataset) []dataset.Record {
	n := ds.Len()
	size := n
	if size > constants.MaxSampleRows {
		size = constants.MaxSampleRows
	}

	order := p.rng.Perm(n)[:size]
	records := make([]dataset.Record, size)
	for k, r := range order {
		records[k] = ds.Record(r, constants.SampleNullPlaceholder)
	}
	return records
}

func roles(ds *dataset.Dataset) Roles {
	r := Roles{
		DatetimeCols:    []string{},
		CategoricalCols: []string{},
		NumericalCols:   []string{},
	}

	for i, col := range ds.Columns {
		lower := strings.ToLower(col.Name)

		if containsAny(lower, datetimeHints) {
			r.DatetimeCols = append(r.DatetimeCols, col.Name)
		}
		if r.GeoCols.Lat == nil && equalsAny(lower, latNames) {
			r.GeoCols.Lat = stringPtr(col.Name)
		}
		if r.GeoCols.Lng == nil && equalsAny(lower, lngNames) {
			r.GeoCols.Lng = stringPtr(col.Name)
		}
		if r.GeoCols.City == nil && containsAny(lower, placeHints) {
			r.GeoCols.City = stringPtr(col.Name)
		}
		if !col.Type.IsNumeric() || ds.UniqueCount(i) < constants.CategoricalUniqueThreshold {
			r.CategoricalCols = append(r.CategoricalCols, col.Name)
		}
		if col.Type.IsNumeric() {
			r.NumericalCols = append(r.NumericalCols, col.Name)
		}
	}

	return r
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func equalsAny(s string, options []string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

func stringPtr(s string) *string {
	return &s
}
