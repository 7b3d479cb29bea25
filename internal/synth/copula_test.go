package synth

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/pkg/constants"
)

// trainingCSV has a strongly correlated numeric pair, a categorical column,
// a float column with nulls, an email column and a date column.
func trainingCSV(n int) string {
	var b strings.Builder
	b.WriteString("x,y,segment,score,contact,signup\n")
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		score := fmt.Sprintf("%.2f", float64(i%17)/4)
		if i%5 == 0 {
			score = ""
		}
		segment := []string{"gold", "silver", "silver", "bronze", "bronze", "bronze"}[i%6]
		fmt.Fprintf(&b, "%d,%d,%s,%s,user%d@corp.example,%s\n",
			i, 2*i+i%3, segment, score, i, start.AddDate(0, 0, i).Format("2006-01-02"))
	}
	return b.String()
}

func fitCopula(t *testing.T, ds *dataset.Dataset, seed int64) *CopulaSynthesizer {
	t.Helper()
	md, err := DetectMetadata(ds)
	require.NoError(t, err)
	require.NoError(t, md.UpdateColumn("contact", "email"))

	params := DefaultHyperparameters()
	params.Seed = seed
	c := NewCopulaSynthesizer(Options{Kind: KindGaussianCopula, Metadata: md, Hyperparameters: params}, logrus.New())
	require.NoError(t, c.Fit(context.Background(), ds))
	return c
}

func keysOf(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestCopulaSampleShape(t *testing.T) {
	ds := loadCSV(t, trainingCSV(300))
	c := fitCopula(t, ds, 3)

	out, err := c.Sample(context.Background(), 500)
	require.NoError(t, err)

	assert.Equal(t, 500, out.Len())
	assert.Equal(t, ds.ColumnNames(), out.ColumnNames())
	assert.Equal(t, dataset.TypeInt64, out.Columns[0].Type)
	assert.Equal(t, dataset.TypeFloat64, out.Columns[3].Type)
	assert.Equal(t, dataset.TypeObject, out.Columns[2].Type)
}

func TestCopulaMarginals(t *testing.T) {
	ds := loadCSV(t, trainingCSV(300))
	c := fitCopula(t, ds, 5)

	out, err := c.Sample(context.Background(), 2000)
	require.NoError(t, err)

	// values stay inside the observed range
	for _, v := range out.NonNullFloats(0) {
		assert.True(t, v >= 0 && v <= 299, v)
		assert.Equal(t, math.Trunc(v), v)
	}

	// only observed categories appear, roughly in proportion
	counts := map[string]int{}
	for _, v := range out.ColumnValues(2) {
		counts[v.Str]++
	}
	assert.ElementsMatch(t, []string{"gold", "silver", "bronze"}, keysOf(counts))
	assert.Greater(t, counts["bronze"], counts["gold"])

	// null rate of score is about 20%
	rate := float64(out.NullCount(3)) / float64(out.Len())
	assert.InDelta(t, 0.2, rate, 0.05)

	// rounding follows the observed precision
	for _, v := range out.NonNullFloats(3) {
		assert.InDelta(t, v, math.Round(v*100)/100, 1e-9)
	}
}

func TestCopulaPreservesCorrelation(t *testing.T) {
	ds := loadCSV(t, trainingCSV(300))
	c := fitCopula(t, ds, 9)

	out, err := c.Sample(context.Background(), 1000)
	require.NoError(t, err)

	r := stat.Correlation(out.Floats(0), out.Floats(1), nil)
	assert.Greater(t, r, 0.9)
}

func TestCopulaPIIColumnsAreSynthetic(t *testing.T) {
	ds := loadCSV(t, trainingCSV(50))
	c := fitCopula(t, ds, 13)

	out, err := c.Sample(context.Background(), 100)
	require.NoError(t, err)

	real := map[string]bool{}
	for _, v := range ds.ColumnValues(4) {
		real[v.Str] = true
	}
	for _, v := range out.ColumnValues(4) {
		assert.Contains(t, v.Str, "@")
		assert.False(t, real[v.Str], v.Str)
	}
}

func TestCopulaDatetime(t *testing.T) {
	ds := loadCSV(t, trainingCSV(100))
	c := fitCopula(t, ds, 17)

	out, err := c.Sample(context.Background(), 200)
	require.NoError(t, err)

	lo := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	hi := lo.AddDate(0, 0, 99)
	for _, v := range out.ColumnValues(5) {
		ts, err := time.Parse("2006-01-02", v.Str)
		require.NoError(t, err, v.Str)
		assert.False(t, ts.Before(lo) || ts.After(hi), v.Str)
	}
}

func TestCopulaMarshalRoundTrip(t *testing.T) {
	ds := loadCSV(t, trainingCSV(120))
	c := fitCopula(t, ds, 21)

	data, err := c.Marshal()
	require.NoError(t, err)

	load := func() *CopulaSynthesizer {
		params := DefaultHyperparameters()
		params.Seed = 77
		restored := NewCopulaSynthesizer(Options{Hyperparameters: params}, logrus.New())
		require.NoError(t, restored.Unmarshal(data))
		return restored
	}

	a, b := load(), load()
	assert.Equal(t, KindGaussianCopula, a.Kind())
	assert.Equal(t, EngineCopula, a.Engine())
	assert.Equal(t, c.Metadata().Names(), a.Metadata().Names())

	sa, err := a.Sample(context.Background(), 50)
	require.NoError(t, err)
	sb, err := b.Sample(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, sa.Rows, sb.Rows)
}

func TestCopulaConstantAndEmptyColumns(t *testing.T) {
	ds := loadCSV(t, "k,empty,v\n7,,1\n7,,2\n7,,3\n")
	c := NewCopulaSynthesizer(Options{Kind: KindGaussianCopula}, logrus.New())
	require.NoError(t, c.Fit(context.Background(), ds))

	out, err := c.Sample(context.Background(), 20)
	require.NoError(t, err)
	for _, row := range out.Rows {
		assert.Equal(t, 7.0, row[0].Num)
		assert.True(t, row[1].IsNull())
	}
}

func TestCopulaSamplesNoNegativeZero(t *testing.T) {
	ds := loadCSV(t, "a,b\n-1,-0.2\n0,0.0\n0,0.1\n1,0.2\n")
	params := DefaultHyperparameters()
	params.Seed = 3
	c := NewCopulaSynthesizer(Options{Kind: KindGaussianCopula, Hyperparameters: params}, logrus.New())
	require.NoError(t, c.Fit(context.Background(), ds))

	out, err := c.Sample(context.Background(), 2000)
	require.NoError(t, err)
	for _, row := range out.Rows {
		for _, v := range row {
			if v.IsNumber() && v.Num == 0 {
				require.False(t, math.Signbit(v.Num))
			}
		}
	}
}

func TestCopulaErrors(t *testing.T) {
	c := NewCopulaSynthesizer(Options{}, logrus.New())

	_, err := c.Sample(context.Background(), 10)
	assert.Error(t, err)
	_, err = c.Marshal()
	assert.Error(t, err)
	assert.Error(t, c.Fit(context.Background(), loadCSV(t, "a\n")))
	assert.Error(t, c.Unmarshal([]byte("{")))
	assert.Error(t, c.Unmarshal([]byte(`{"columns":[],"correlation":[1],"dimensions":2}`)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Fit(ctx, loadCSV(t, "a\n1\n")))
}

func TestCopulaRejectsBadDatetime(t *testing.T) {
	ds := loadCSV(t, "when\n2020-01-01\nlater\n")
	md := &Metadata{Columns: []ColumnMetadata{{
		Name: "when", SDType: constants.SDTypeDatetime, DType: dataset.TypeObject, Format: "2006-01-02",
	}}}
	c := NewCopulaSynthesizer(Options{Metadata: md}, logrus.New())
	assert.Error(t, c.Fit(context.Background(), ds))
}

func TestCholeskyShrinksIndefiniteMatrix(t *testing.T) {
	// pairwise correlations that no joint distribution can have
	corr := []float64{
		1, 0.9, -0.9,
		0.9, 1, 0.9,
		-0.9, 0.9, 1,
	}
	l, lambda := choleskyFactor(corr, 3)
	require.NotNil(t, l)
	assert.Greater(t, lambda, 0.0)

	l, lambda = choleskyFactor([]float64{1, 0.5, 0.5, 1}, 2)
	require.NotNil(t, l)
	assert.Equal(t, 0.0, lambda)
}

func TestMidranks(t *testing.T) {
	ranks := midranks([]float64{1, 2, 2, 3})
	assert.Equal(t, 0.0, ranks[1])
	assert.Equal(t, 1.5, ranks[2])
	assert.Equal(t, 3.0, ranks[3])
}

func TestQuantileValue(t *testing.T) {
	q := []float64{0, 10, 20}
	assert.Equal(t, 5.0, quantileValue(q, 0.25))
	assert.InDelta(t, 0.0, quantileValue(q, 0), 1e-3)
	assert.InDelta(t, 20.0, quantileValue(q, 1), 1e-3)
	assert.Equal(t, 4.0, quantileValue([]float64{4}, 0.9))
}

func TestDecimals(t *testing.T) {
	assert.Equal(t, 0, decimals([]float64{1, 2}))
	assert.Equal(t, 2, decimals([]float64{1.5, 2.25}))
	assert.Equal(t, maxDecimals, decimals([]float64{math.Pi}))
}
