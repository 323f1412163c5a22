package features

import (
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ta"
)

// Config controls historical feature construction.
type Config struct {
	Lags           []int
	Windows        []int
	DropIncomplete bool
}

func DefaultConfig() Config {
	return Config{Lags: DefaultLags, Windows: DefaultWindows}
}

func (c Config) Schema() Schema {
	lags, windows := c.Lags, c.Windows
	if len(lags) == 0 {
		lags = DefaultLags
	}
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	return NewSchema(lags, windows)
}

// Explode turns each wide day into one tall row per non-blank headline slot,
// in slot order. Days without headlines produce nothing.
func Explode(wide []domain.WideRecord) ([]domain.TallRecord, error) {
	out := make([]domain.TallRecord, 0, len(wide)*domain.HeadlineSlots)
	for _, w := range wide {
		for _, h := range w.Headlines {
			if strings.TrimSpace(h) == "" {
				continue
			}
			out = append(out, domain.TallRecord{
				Date:     domain.TruncateDay(w.Date),
				Headline: h,
				Label:    w.Label,
				Features: maps.Clone(w.Scalars),
			})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no non-blank headlines in %d wide records", domain.ErrDataIntegrity, len(wide))
	}
	return out, nil
}

// AddLagAndMAFeatures derives lagged and trailing-mean volatility columns from
// the per-day metric series and removes the raw metric columns. The series has
// one value per distinct date, taken from the first row of that date, so every
// headline of a day gets the same values and nothing from day d or later
// reaches day d. Days without enough history get NaN.
func AddLagAndMAFeatures(tall []domain.TallRecord, lags, windows []int) ([]domain.TallRecord, error) {
	rows := cloneRows(tall)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	type day struct {
		start, end int
	}
	days := make([]day, 0)
	for i := range rows {
		if i == 0 || !rows[i].Date.Equal(rows[i-1].Date) {
			days = append(days, day{start: i, end: i + 1})
			continue
		}
		days[len(days)-1].end = i + 1
	}

	derived := make(map[string][]float64)
	for _, m := range domain.VolatilityMetrics {
		series := make([]float64, len(days))
		for d, span := range days {
			v, ok := rows[span.start].Features[m]
			if !ok {
				return nil, fmt.Errorf("%w: %s missing on %s", domain.ErrDataIntegrity, m, domain.DateKey(rows[span.start].Date))
			}
			series[d] = v
		}
		for _, k := range lags {
			derived[LagColumn(m, k)] = ta.Shift(series, k)
		}
		for _, w := range windows {
			derived[MAColumn(m, w)] = ta.TrailingMean(series, w)
		}
	}

	for d, span := range days {
		for i := span.start; i < span.end; i++ {
			for col, values := range derived {
				rows[i].Features[col] = values[d]
			}
			for _, m := range domain.VolatilityMetrics {
				delete(rows[i].Features, m)
			}
		}
	}
	return rows, nil
}

// AddCalendarFeatures sets all 23 calendar indicators on every row.
func AddCalendarFeatures(tall []domain.TallRecord) []domain.TallRecord {
	rows := cloneRows(tall)
	for i := range rows {
		maps.Copy(rows[i].Features, Calendar(rows[i].Date))
	}
	return rows
}

// Calendar returns the one-hot weekday, month and quarter indicators for t.
func Calendar(t time.Time) map[string]float64 {
	out := make(map[string]float64, 23)
	for _, c := range CalendarColumns() {
		out[c] = 0
	}
	u := t.UTC()
	dow := (int(u.Weekday()) + 6) % 7
	out[fmt.Sprintf("dow_%d", dow)] = 1
	out[fmt.Sprintf("month_%d", int(u.Month()))] = 1
	out[fmt.Sprintf("quarter_%d", (int(u.Month())-1)/3+1)] = 1
	return out
}

// DropIncomplete removes rows with a missing or NaN value in any schema column.
func DropIncomplete(tall []domain.TallRecord, schema Schema) []domain.TallRecord {
	out := make([]domain.TallRecord, 0, len(tall))
	for _, r := range tall {
		complete := true
		for _, c := range schema.Numeric {
			v, ok := r.Features[c]
			if !ok || math.IsNaN(v) {
				complete = false
				break
			}
		}
		if complete {
			out = append(out, r)
		}
	}
	return out
}

// Build runs the full feature pipeline on wide records.
func Build(wide []domain.WideRecord, cfg Config) ([]domain.TallRecord, Schema, error) {
	schema := cfg.Schema()
	for _, w := range wide {
		for _, m := range domain.VolatilityMetrics {
			if _, ok := w.Scalars[m]; !ok {
				return nil, Schema{}, fmt.Errorf("%w: wide record %s has no %s column", domain.ErrDataIntegrity, domain.DateKey(w.Date), m)
			}
		}
	}
	tall, err := Explode(wide)
	if err != nil {
		return nil, Schema{}, err
	}
	tall, err = AddLagAndMAFeatures(tall, lagsOrDefault(cfg.Lags), windowsOrDefault(cfg.Windows))
	if err != nil {
		return nil, Schema{}, err
	}
	tall = AddCalendarFeatures(tall)
	if cfg.DropIncomplete {
		tall = DropIncomplete(tall, schema)
		if len(tall) == 0 {
			return nil, Schema{}, fmt.Errorf("%w: no rows with complete history", domain.ErrDataIntegrity)
		}
	}
	if err := CheckLeakage(schema, tall); err != nil {
		return nil, Schema{}, err
	}
	return tall, schema, nil
}

// DeriveLabels sets each day's label to 1 when realized volatility rose
// against the previous day. The first day gets 0.
func DeriveLabels(wide []domain.WideRecord) []domain.WideRecord {
	out := make([]domain.WideRecord, len(wide))
	copy(out, wide)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	for i := range out {
		out[i].Label = 0
		if i == 0 {
			continue
		}
		if label, ok := VolUp(out[i-1].Scalars, out[i].Scalars); ok {
			out[i].Label = label
		}
	}
	return out
}

// VolUp compares realized volatility of two consecutive days. ok is false
// when either day lacks the metric.
func VolUp(prev, cur map[string]float64) (label int, ok bool) {
	p, okPrev := prev[domain.MetricRealizedVol]
	c, okCur := cur[domain.MetricRealizedVol]
	if !okPrev || !okCur {
		return 0, false
	}
	if c-p > 0 {
		return 1, true
	}
	return 0, true
}

func lagsOrDefault(v []int) []int {
	if len(v) == 0 {
		return DefaultLags
	}
	return v
}

func windowsOrDefault(v []int) []int {
	if len(v) == 0 {
		return DefaultWindows
	}
	return v
}

func cloneRows(tall []domain.TallRecord) []domain.TallRecord {
	rows := make([]domain.TallRecord, len(tall))
	for i, r := range tall {
		rows[i] = r
		rows[i].Features = maps.Clone(r.Features)
		if rows[i].Features == nil {
			rows[i].Features = make(map[string]float64)
		}
	}
	return rows
}
