package quality

import (
	"math"
	"sort"

	"github.com/inferloop/tabsynth/internal/dataset"
)

// KSStatistic returns the two-sample Kolmogorov-Smirnov statistic D and the
// location where the empirical CDFs differ the most. Empty samples give NaN.
func KSStatistic(sample1, sample2 []float64) (float64, float64) {
	if len(sample1) == 0 || len(sample2) == 0 {
		return math.NaN(), math.NaN()
	}

	sorted1 := append([]float64(nil), sample1...)
	sorted2 := append([]float64(nil), sample2...)
	sort.Float64s(sorted1)
	sort.Float64s(sorted2)

	n1, n2 := len(sorted1), len(sorted2)
	var maxDiff float64
	var diffLocation float64

	i1, i2 := 0, 0
	for i1 < n1 || i2 < n2 {
		var x float64
		if i1 >= n1 {
			x = sorted2[i2]
		} else if i2 >= n2 {
			x = sorted1[i1]
		} else {
			x = math.Min(sorted1[i1], sorted2[i2])
		}

		for i1 < n1 && sorted1[i1] <= x {
			i1++
		}
		for i2 < n2 && sorted2[i2] <= x {
			i2++
		}

		cdf1 := float64(i1) / float64(n1)
		cdf2 := float64(i2) / float64(n2)
		diff := math.Abs(cdf1 - cdf2)

		if diff > maxDiff {
			maxDiff = diff
			diffLocation = x
		}
	}

	return maxDiff, diffLocation
}

// KSComplement scores marginal similarity of continuous samples as 1 - D
func KSComplement(real, synthetic []float64) float64 {
	d, _ := KSStatistic(real, synthetic)
	return 1 - d
}

// TVComplement scores marginal similarity of categorical samples as one minus
// the total variation distance of their frequencies. Nulls are ignored.
func TVComplement(real, synthetic []dataset.Value) float64 {
	p := frequencies(real)
	q := frequencies(synthetic)
	if p == nil || q == nil {
		return math.NaN()
	}
	return 1 - totalVariation(p, q)
}

func frequencies(values []dataset.Value) map[string]float64 {
	counts := make(map[string]float64)
	total := 0.0
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		counts[v.Key()]++
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

func totalVariation(p, q map[string]float64) float64 {
	sum := 0.0
	for k, pk := range p {
		sum += math.Abs(pk - q[k])
	}
	for k, qk := range q {
		if _, ok := p[k]; !ok {
			sum += qk
		}
	}
	return sum / 2
}
