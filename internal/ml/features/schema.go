package features

import (
	"fmt"
	"slices"

	"headline-vol/internal/domain"
)

const featureSpecVersion = "v1"

var (
	// DefaultLags are the day offsets used for lagged volatility columns.
	DefaultLags = []int{1, 2, 3, 5, 10}
	// DefaultWindows are the trailing-mean window lengths in days.
	DefaultWindows = []int{5, 10, 20}
)

// Schema is the ordered list of numeric columns a model consumes. Models read
// columns by name, so a row may carry extra keys without shifting anything.
type Schema struct {
	Version string   `json:"version"`
	Numeric []string `json:"numeric"`
}

func FeatureSpecVersion() string {
	return featureSpecVersion
}

// LagColumn names the k-day lag of metric.
func LagColumn(metric string, k int) string {
	return fmt.Sprintf("%s_lag_%d", metric, k)
}

// MAColumn names the w-day trailing mean of metric.
func MAColumn(metric string, w int) string {
	return fmt.Sprintf("%s_ma_%d", metric, w)
}

// CalendarColumns returns the 23 indicator columns: dow_0..dow_6 (Monday=0),
// month_1..month_12 and quarter_1..quarter_4.
func CalendarColumns() []string {
	cols := make([]string, 0, 23)
	for i := 0; i < 7; i++ {
		cols = append(cols, fmt.Sprintf("dow_%d", i))
	}
	for i := 1; i <= 12; i++ {
		cols = append(cols, fmt.Sprintf("month_%d", i))
	}
	for i := 1; i <= 4; i++ {
		cols = append(cols, fmt.Sprintf("quarter_%d", i))
	}
	return cols
}

// HistoryColumns lists lag columns (lag-major, metric-minor) followed by
// moving-average columns (window-major, metric-minor).
func HistoryColumns(lags, windows []int) []string {
	cols := make([]string, 0, (len(lags)+len(windows))*len(domain.VolatilityMetrics))
	for _, k := range lags {
		for _, m := range domain.VolatilityMetrics {
			cols = append(cols, LagColumn(m, k))
		}
	}
	for _, w := range windows {
		for _, m := range domain.VolatilityMetrics {
			cols = append(cols, MAColumn(m, w))
		}
	}
	return cols
}

// NewSchema builds the schema produced by the given lag and window sets.
func NewSchema(lags, windows []int) Schema {
	numeric := HistoryColumns(lags, windows)
	numeric = append(numeric, CalendarColumns()...)
	return Schema{Version: featureSpecVersion, Numeric: numeric}
}

// DefaultSchema is the v1 contract: 15 lags, 9 trailing means, 23 calendar columns.
func DefaultSchema() Schema {
	return NewSchema(DefaultLags, DefaultWindows)
}

func (s Schema) Has(column string) bool {
	return slices.Contains(s.Numeric, column)
}

// Validate rejects empty, duplicated or leaking column lists.
func (s Schema) Validate() error {
	if len(s.Numeric) == 0 {
		return fmt.Errorf("%w: schema has no numeric columns", domain.ErrDataIntegrity)
	}
	seen := make(map[string]struct{}, len(s.Numeric))
	for _, c := range s.Numeric {
		if domain.IsVolatilityMetric(c) {
			return fmt.Errorf("%w: schema column %q is a same-day metric", domain.ErrLeakage, c)
		}
		if _, ok := seen[c]; ok {
			return fmt.Errorf("%w: duplicate schema column %q", domain.ErrDataIntegrity, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}
