package profile

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/internal/dataset"
)

func newTestProfiler() *Profiler {
	return NewProfiler(logrus.New(), rand.New(rand.NewSource(7)))
}

func loadCSV(t *testing.T, text string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV([]byte(text), dataset.DefaultCSVOptions())
	require.NoError(t, err)
	return ds
}

// wideCSV builds n rows with a high-cardinality numeric column, a
// correlated column, a categorical column and a column with nulls.
func wideCSV(n int) string {
	var b strings.Builder
	b.WriteString("amount,double,city,score\n")
	for i := 0; i < n; i++ {
		score := fmt.Sprintf("%d", i%5)
		if i%4 == 0 {
			score = ""
		}
		fmt.Fprintf(&b, "%d,%d,%s,%s\n", i, i*2, []string{"Paris", "Lyon", "Nice"}[i%3], score)
	}
	return b.String()
}

func TestNullPercentage(t *testing.T) {
	ds := loadCSV(t, "a,b\n1,\n2,x\n3,\n")
	report := newTestProfiler().Profile(ds)

	assert.Equal(t, 0.0, report.Columns[0].NullPercentage)
	assert.Equal(t, 66.67, report.Columns[1].NullPercentage)
}

func TestNullPercentageEmptyDataset(t *testing.T) {
	ds := loadCSV(t, "a,b\n")
	report := newTestProfiler().Profile(ds)

	assert.Equal(t, 0, report.RowCount)
	assert.Equal(t, 2, report.ColumnCount)
	for _, col := range report.Columns {
		assert.Equal(t, 0.0, col.NullPercentage)
	}
	require.NotNil(t, report.Sample)
	assert.Empty(t, *report.Sample)

	b, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sample":[]`)
}

func TestCategoricalDistribution(t *testing.T) {
	ds := loadCSV(t, "color\nred\nblue\nred\ngreen\nblue\nred\n\n")
	report := newTestProfiler().Profile(ds)

	col := report.Columns[0]
	assert.Equal(t, "object", col.Type)
	assert.Equal(t, 3, col.UniqueCount)
	require.NotNil(t, col.Distribution)
	assert.Equal(t, []string{"red", "blue", "green"}, col.Distribution.Labels)
	assert.Equal(t, []int{3, 2, 1}, col.Distribution.Values)
	assert.Nil(t, col.Stats)
}

func TestDistributionTiesKeepFirstEncounter(t *testing.T) {
	ds := loadCSV(t, "v\nb\na\nc\na\nb\nc\n")
	report := newTestProfiler().Profile(ds)

	assert.Equal(t, []string{"b", "a", "c"}, report.Columns[0].Distribution.Labels)
}

func TestDistributionTopFifteen(t *testing.T) {
	var b strings.Builder
	b.WriteString("code\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "c%02d\n", i)
	}
	report := newTestProfiler().Profile(loadCSV(t, b.String()))

	assert.Len(t, report.Columns[0].Distribution.Labels, 15)
	assert.Equal(t, 30, report.Columns[0].UniqueCount)
}

func TestLowCardinalityNumericUsesFrequencies(t *testing.T) {
	ds := loadCSV(t, "rating,weight\n1,1.5\n2,1.5\n1,2.0\n")
	report := newTestProfiler().Profile(ds)

	assert.Equal(t, []string{"1", "2"}, report.Columns[0].Distribution.Labels)
	assert.Equal(t, []string{"1.5", "2.0"}, report.Columns[1].Distribution.Labels)
	assert.Nil(t, report.Columns[0].Stats)
}

func TestNumericHistogram(t *testing.T) {
	ds := loadCSV(t, wideCSV(100))
	report := newTestProfiler().Profile(ds)

	col := report.Columns[0]
	require.NotNil(t, col.Stats)
	assert.Equal(t, 0.0, col.Stats.Min)
	assert.Equal(t, 99.0, col.Stats.Max)
	assert.Equal(t, 49.5, col.Stats.Mean)
	assert.Equal(t, 49.5, col.Stats.Median)

	require.NotNil(t, col.Distribution)
	require.Len(t, col.Distribution.Labels, 10)
	require.Len(t, col.Distribution.Values, 10)
	assert.Equal(t, "0.0-9.9", col.Distribution.Labels[0])
	assert.Equal(t, "89.1-99.0", col.Distribution.Labels[9])

	total := 0
	for _, v := range col.Distribution.Values {
		total += v
	}
	assert.Equal(t, 100, total)

	prev := -1.0
	for _, label := range col.Distribution.Labels {
		var lo, hi float64
		_, err := fmt.Sscanf(label, "%g-%g", &lo, &hi)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, lo, prev)
		assert.GreaterOrEqual(t, hi, lo)
		prev = lo
	}
}

func TestCorrelationMatrix(t *testing.T) {
	ds := loadCSV(t, wideCSV(60))
	report := newTestProfiler().Profile(ds)

	require.NotNil(t, report.Correlation)
	assert.Equal(t, []string{"amount", "double", "score"}, report.Correlation.Columns)

	m := report.Correlation.Values
	for i := range m {
		assert.Equal(t, 1.0, m[i][i])
		for j := range m {
			assert.Equal(t, m[i][j], m[j][i])
		}
	}
	assert.Equal(t, 1.0, m[0][1])
}

func TestCorrelationUndefinedIsZero(t *testing.T) {
	ds := loadCSV(t, "a,b\n1,5\n2,5\n3,5\n")
	report := newTestProfiler().Profile(ds)

	require.NotNil(t, report.Correlation)
	assert.Equal(t, [][]float64{{1, 0}, {0, 0}}, report.Correlation.Values)
}

func TestCorrelationNeedsTwoNumericColumns(t *testing.T) {
	ds := loadCSV(t, "a,b\n1,x\n2,y\n")
	report := newTestProfiler().Profile(ds)
	assert.Nil(t, report.Correlation)
}

func TestSampleBoundedAndNullPlaceholder(t *testing.T) {
	ds := loadCSV(t, wideCSV(250))
	report := newTestProfiler().Profile(ds)
	assert.Len(t, *report.Sample, 200)

	small := loadCSV(t, "a,b\n1,\n")
	report = newTestProfiler().Profile(small)
	require.Len(t, *report.Sample, 1)

	b, err := json.Marshal((*report.Sample)[0])
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":"null"}`, string(b))
}

func TestRoles(t *testing.T) {
	ds := loadCSV(t, "order_date,Latitude,lng,home_town,region,amount,label\n2024-01-01,1.5,2.5,x,y,1,a\n")
	report := newTestProfiler().Profile(ds)

	roles := report.Metadata
	assert.Equal(t, []string{"order_date"}, roles.DatetimeCols)
	require.NotNil(t, roles.GeoCols.Lat)
	assert.Equal(t, "Latitude", *roles.GeoCols.Lat)
	require.NotNil(t, roles.GeoCols.Lng)
	assert.Equal(t, "lng", *roles.GeoCols.Lng)
	require.NotNil(t, roles.GeoCols.City)
	assert.Equal(t, "home_town", *roles.GeoCols.City)
	assert.Equal(t, []string{"Latitude", "lng", "amount"}, roles.NumericalCols)
	assert.Contains(t, roles.CategoricalCols, "label")
	assert.Contains(t, roles.CategoricalCols, "amount")
}

func TestRolesAbsentGeoIsNull(t *testing.T) {
	report := newTestProfiler().Profile(loadCSV(t, "a\n1\n"))

	b, err := json.Marshal(report.Metadata.GeoCols)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":null,"lng":null,"city":null}`, string(b))
}

func TestProfileIsIdempotent(t *testing.T) {
	ds := loadCSV(t, wideCSV(80))
	first := newTestProfiler().Profile(ds)
	second := NewProfiler(nil, nil).Profile(ds)

	assert.Equal(t, first.RowCount, second.RowCount)
	assert.Equal(t, first.ColumnCount, second.ColumnCount)
	assert.Equal(t, first.Columns, second.Columns)
	assert.Equal(t, first.Correlation, second.Correlation)
}

func TestProfileCSVErrorPayload(t *testing.T) {
	report, errReport := newTestProfiler().ProfileCSV([]byte(""))
	assert.Nil(t, report)
	require.NotNil(t, errReport)
	assert.True(t, strings.HasPrefix(errReport.Error, "Failed to parse CSV: "))

	report, errReport = newTestProfiler().ProfileCSV([]byte("a,b\n1,2\n"))
	assert.Nil(t, errReport)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.RowCount)
}

func TestReportJSONShape(t *testing.T) {
	report := newTestProfiler().Profile(loadCSV(t, "a,b\n1,2\n3,4\n"))
	b, err := json.Marshal(report)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &doc))
	for _, key := range []string{"rowCount", "columnCount", "columns", "correlation", "sample", "metadata"} {
		assert.Contains(t, doc, key)
	}
}
