package domain

import "time"

// Raw same-day volatility metrics carried on wide rows. They are only ever used
// to derive lagged features and must never reach the model directly.
const (
	MetricRealizedVol  = "realized_vol"
	MetricTrueRangeVol = "tr_vol"
	MetricParkinsonVol = "park_vol"
)

// VolatilityMetrics lists the raw metrics in feature order.
var VolatilityMetrics = []string{MetricRealizedVol, MetricTrueRangeVol, MetricParkinsonVol}

// IsVolatilityMetric reports whether name is a raw same-day metric column.
func IsVolatilityMetric(name string) bool {
	for _, m := range VolatilityMetrics {
		if m == name {
			return true
		}
	}
	return false
}

// VolatilityObservation is one day's raw metric values.
type VolatilityObservation struct {
	Date   time.Time
	Values map[string]float64
}
