package ta

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MeanStd returns the population mean and standard deviation of values.
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	return mean, std
}

// Shift returns values moved k positions later; the first k entries are NaN.
func Shift(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i-k < 0 || i-k >= len(values) {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-k]
	}
	return out
}

// TrailingMean is the mean of the w values strictly before each index. Entries
// without a full window, or whose window holds a NaN, are NaN.
func TrailingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
		if window <= 0 || i-window < 0 {
			continue
		}
		w := values[i-window : i]
		if anyNaN(w) {
			continue
		}
		out[i] = stat.Mean(w, nil)
	}
	return out
}

// Quantile returns the q-quantile of values using linear interpolation
// between closest ranks. NaN values are ignored.
func Quantile(values []float64, q float64) float64 {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return math.NaN()
	}
	sort.Float64s(clean)
	if q <= 0 {
		return clean[0]
	}
	if q >= 1 {
		return clean[len(clean)-1]
	}
	pos := q * float64(len(clean)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return clean[lo] + frac*(clean[hi]-clean[lo])
}

func anyNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
