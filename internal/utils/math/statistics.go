package math

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median calculates the median of a slice of float64 values
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// MinMax returns the smallest and largest value
func MinMax(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}

	mean := Mean(values)
	sumSquaredDiff := 0.0

	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	return sumSquaredDiff / float64(len(values)-1)
}

// Correlation calculates the Pearson correlation coefficient between two variables.
// NaN entries mark missing observations; only pairs where both sides are present
// are used. The result is NaN when fewer than two complete pairs remain or when
// either side has zero variance.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) {
		return math.NaN()
	}

	var xs, ys []float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 {
		return math.NaN()
	}

	meanX := Mean(xs)
	meanY := Mean(ys)

	numerator := 0.0
	sumXSq := 0.0
	sumYSq := 0.0

	for i := range xs {
		diffX := xs[i] - meanX
		diffY := ys[i] - meanY
		numerator += diffX * diffY
		sumXSq += diffX * diffX
		sumYSq += diffY * diffY
	}

	denominator := math.Sqrt(sumXSq * sumYSq)
	if denominator == 0 {
		return math.NaN()
	}

	r := numerator / denominator
	// clamp floating error
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r
}

// CorrelationMatrix computes the pairwise Pearson matrix of the given columns.
// Undefined entries are NaN.
func CorrelationMatrix(columns [][]float64) [][]float64 {
	n := len(columns)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			r := Correlation(columns[i], columns[j])
			matrix[i][j] = r
			matrix[j][i] = r
		}
	}
	return matrix
}

// Percentile calculates the p-th percentile of a slice of values
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	if p < 0 || p > 100 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return PercentileSorted(sorted, p)
}

// PercentileSorted is Percentile for input that is already sorted ascending
func PercentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Histogram counts values into bins equal-width buckets spanning [min, max].
// Every bucket is half-open except the last, which also includes max. When
// all values are equal the range is widened by 0.5 on each side.
func Histogram(values []float64, bins int) (counts []int, edges []float64) {
	if bins <= 0 {
		return nil, nil
	}
	counts = make([]int, bins)
	if len(values) == 0 {
		edges = Linspace(0, 1, bins+1)
		return counts, edges
	}

	lo, hi := MinMax(values)
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	edges = Linspace(lo, hi, bins+1)
	width := hi - lo

	for _, v := range values {
		idx := int((v - lo) / width * float64(bins))
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		for idx > 0 && v < edges[idx] {
			idx--
		}
		for idx < bins-1 && v >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}

	return counts, edges
}

// Linspace returns num evenly spaced values over [start, stop]
func Linspace(start, stop float64, num int) []float64 {
	if num <= 0 {
		return nil
	}
	if num == 1 {
		return []float64{start}
	}
	out := make([]float64, num)
	step := (stop - start) / float64(num-1)
	for i := 0; i < num; i++ {
		out[i] = start + float64(i)*step
	}
	out[num-1] = stop
	return out
}

// Round rounds x to the given number of decimal places using correctly
// rounded decimal conversion, so halfway cases follow the binary value.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return r
}

// FormatFloat renders x the way a float is printed in reports: the shortest
// representation that round-trips, always with a fractional part for
// integral values ("3.0"), and exponent notation for very large or small
// magnitudes.
func FormatFloat(x float64) string {
	switch {
	case math.IsNaN(x):
		return "nan"
	case math.IsInf(x, 1):
		return "inf"
	case math.IsInf(x, -1):
		return "-inf"
	}

	abs := math.Abs(x)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(x, 'e', -1, 64)
	}

	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
