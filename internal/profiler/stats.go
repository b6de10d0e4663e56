package profiler

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// quantile uses linear interpolation between closest ranks, (n-1)*p, on
// sorted input. gonum's LinInterp uses a different plotting position.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func describe(values []float64, withKurtosis bool) NumericStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := NumericStats{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: quantile(sorted, 0.5),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Q25:    quantile(sorted, 0.25),
		Q75:    quantile(sorted, 0.75),
	}
	s.IQR = s.Q75 - s.Q25
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}

	if len(sorted) >= 3 {
		skew := 0.0
		if s.Std > 0 {
			skew = stat.Skew(sorted, nil)
		}
		if finite(skew) {
			s.Skewness = &skew
		}
	}
	if withKurtosis && len(sorted) > 10 && s.Std > 0 {
		if k := stat.ExKurtosis(sorted, nil); finite(k) {
			s.Kurtosis = &k
		}
	}
	return s
}

func distributionOf(s NumericStats) Distribution {
	if s.Count < 3 || s.Skewness == nil {
		return DistributionUnknown
	}
	switch skew := math.Abs(*s.Skewness); {
	case skew < 0.5:
		return DistributionNormal
	case skew < 1.0:
		return DistributionSlightlySkewed
	case skew < 2.0:
		return DistributionModeratelySkewed
	default:
		return DistributionHighlySkewed
	}
}

// tukeyOutliers returns nil when IQR is zero or nothing falls outside the fences
func tukeyOutliers(values []float64, s NumericStats) *Outliers {
	if s.IQR == 0 {
		return nil
	}
	lower := s.Q25 - 1.5*s.IQR
	upper := s.Q75 + 1.5*s.IQR

	out := &Outliers{Values: make([]float64, 0, 10)}
	for _, v := range values {
		if v < lower || v > upper {
			out.Count++
			if len(out.Values) < 10 {
				out.Values = append(out.Values, v)
			}
		}
	}
	if out.Count == 0 {
		return nil
	}
	out.Percentage = float64(out.Count) / float64(len(values)) * 100
	return out
}

// pearson over rows where both values are present; false when undefined
func pearson(x, y []float64, present []bool) (float64, bool) {
	var xs, ys []float64
	for i := range x {
		if present[i] {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	if len(xs) < 2 {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	return r, finite(r)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
