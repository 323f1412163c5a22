package features

import (
	"fmt"
	"maps"
	"math"
	"sort"
	"time"

	"headline-vol/internal/domain"

	"gonum.org/v1/gonum/stat"
)

// Snapshot computes the historical feature set for date using only
// observations from strictly earlier days. Missing history yields NaN, which
// models impute at matrix build time.
func Snapshot(history []domain.VolatilityObservation, date time.Time, cfg Config) domain.HistoricalFeatureSet {
	day := domain.TruncateDay(date)
	earlier := make([]domain.VolatilityObservation, 0, len(history))
	seen := make(map[string]struct{}, len(history))
	sorted := make([]domain.VolatilityObservation, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	for _, obs := range sorted {
		d := domain.TruncateDay(obs.Date)
		if !d.Before(day) {
			continue
		}
		key := domain.DateKey(d)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		earlier = append(earlier, obs)
	}

	values := make(map[string]float64)
	n := len(earlier)
	for _, m := range domain.VolatilityMetrics {
		series := make([]float64, n)
		for i, obs := range earlier {
			v, ok := obs.Values[m]
			if !ok {
				v = math.NaN()
			}
			series[i] = v
		}
		for _, k := range lagsOrDefault(cfg.Lags) {
			v := math.NaN()
			if n-k >= 0 && k > 0 {
				v = series[n-k]
			}
			values[LagColumn(m, k)] = v
		}
		for _, w := range windowsOrDefault(cfg.Windows) {
			v := math.NaN()
			if w > 0 && n-w >= 0 && !hasNaN(series[n-w:]) {
				v = stat.Mean(series[n-w:], nil)
			}
			values[MAColumn(m, w)] = v
		}
	}
	maps.Copy(values, Calendar(day))
	return domain.HistoricalFeatureSet{Date: day, Values: values}
}

// NeutralSnapshot is used when no history is available: zero volatility
// history and the real calendar indicators for date.
func NeutralSnapshot(date time.Time, cfg Config) domain.HistoricalFeatureSet {
	day := domain.TruncateDay(date)
	values := make(map[string]float64)
	for _, c := range HistoryColumns(lagsOrDefault(cfg.Lags), windowsOrDefault(cfg.Windows)) {
		values[c] = 0
	}
	maps.Copy(values, Calendar(day))
	return domain.HistoricalFeatureSet{Date: day, Values: values}
}

// SnapshotFromRow reads the schema columns of an already featurised row.
func SnapshotFromRow(row domain.TallRecord, schema Schema) domain.HistoricalFeatureSet {
	values := make(map[string]float64, len(schema.Numeric))
	for _, c := range schema.Numeric {
		v, ok := row.Features[c]
		if !ok {
			v = math.NaN()
		}
		values[c] = v
	}
	return domain.HistoricalFeatureSet{Date: domain.TruncateDay(row.Date), Values: values}
}

// CheckLeakage fails when a raw same-day metric is part of the schema or
// still present on any row.
func CheckLeakage(schema Schema, rows []domain.TallRecord) error {
	for _, c := range schema.Numeric {
		if domain.IsVolatilityMetric(c) {
			return fmt.Errorf("%w: schema column %q", domain.ErrLeakage, c)
		}
	}
	for _, r := range rows {
		for _, m := range domain.VolatilityMetrics {
			if _, ok := r.Features[m]; ok {
				return fmt.Errorf("%w: row %s still carries %q", domain.ErrLeakage, domain.DateKey(r.Date), m)
			}
		}
	}
	return nil
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
