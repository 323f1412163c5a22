package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"headline-vol/internal/domain"
)

func TestExplodeEmitsNonBlankSlotsInOrder(t *testing.T) {
	day := time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC)
	var w domain.WideRecord
	w.Date = day
	w.Label = 1
	w.Headlines[0] = "Brexit vote looms"
	w.Headlines[1] = "  "
	w.Headlines[2] = "Oil slides"
	w.Scalars = map[string]float64{"realized_vol": 0.2, "extra": 3}

	rows, err := Explode([]domain.WideRecord{w})
	if err != nil {
		t.Fatalf("Explode returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Headline != "Brexit vote looms" || rows[1].Headline != "Oil slides" {
		t.Fatalf("unexpected slot order: %q, %q", rows[0].Headline, rows[1].Headline)
	}
	for _, r := range rows {
		if !r.Date.Equal(day) || r.Label != 1 || r.Features["extra"] != 3 {
			t.Fatalf("row did not copy day values: %+v", r)
		}
	}
	rows[0].Features["extra"] = 99
	if w.Scalars["extra"] != 3 {
		t.Fatal("expected exploded rows to own their feature maps")
	}
}

func TestExplodeRejectsAllBlank(t *testing.T) {
	var w domain.WideRecord
	w.Date = time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := Explode([]domain.WideRecord{w})
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity, got %v", err)
	}
}

func TestAddLagAndMAFeaturesUsesPriorDaysOnly(t *testing.T) {
	wide := makeWide(30, 3)
	tall, err := Explode(wide)
	if err != nil {
		t.Fatalf("Explode: %v", err)
	}
	rows, err := AddLagAndMAFeatures(tall, DefaultLags, DefaultWindows)
	if err != nil {
		t.Fatalf("AddLagAndMAFeatures: %v", err)
	}

	// day index 25 has realized_vol 25; lag_1 must be day 24 and ma_5 the mean of 20..24
	var row domain.TallRecord
	for _, r := range rows {
		if r.Date.Equal(wide[25].Date) {
			row = r
			break
		}
	}
	if got := row.Features[LagColumn(domain.MetricRealizedVol, 1)]; got != 24 {
		t.Fatalf("expected lag_1 = 24, got %v", got)
	}
	if got := row.Features[LagColumn(domain.MetricRealizedVol, 10)]; got != 15 {
		t.Fatalf("expected lag_10 = 15, got %v", got)
	}
	if got := row.Features[MAColumn(domain.MetricRealizedVol, 5)]; got != 22 {
		t.Fatalf("expected ma_5 = 22, got %v", got)
	}
	if _, ok := row.Features[domain.MetricRealizedVol]; ok {
		t.Fatal("expected raw metric column to be dropped")
	}

	first := rows[0]
	if !math.IsNaN(first.Features[LagColumn(domain.MetricTrueRangeVol, 1)]) {
		t.Fatal("expected NaN lag on first day")
	}
}

func TestHistoricalFeaturesIgnoreSameDayAndFuture(t *testing.T) {
	wide := makeWide(30, 2)
	base, schema, err := Build(wide, DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	const target = 22
	mutated := make([]domain.WideRecord, len(wide))
	copy(mutated, wide)
	for i := target; i < len(mutated); i++ {
		scalars := make(map[string]float64)
		for k, v := range mutated[i].Scalars {
			scalars[k] = v * 1000
		}
		mutated[i].Scalars = scalars
	}
	changed, _, err := Build(mutated, DefaultConfig())
	if err != nil {
		t.Fatalf("Build mutated: %v", err)
	}

	targetDate := wide[target].Date
	for i := range base {
		if base[i].Date.After(targetDate) {
			break
		}
		for _, c := range schema.Numeric {
			a, b := base[i].Features[c], changed[i].Features[c]
			if math.IsNaN(a) && math.IsNaN(b) {
				continue
			}
			if a != b {
				t.Fatalf("%s on %s changed after mutating day %d onward: %v -> %v", c, domain.DateKey(base[i].Date), target, a, b)
			}
		}
	}
}

func TestHeadlinesOfSameDayShareFeatures(t *testing.T) {
	rows, schema, err := Build(makeWide(25, 4), DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i].Date.Equal(rows[i-1].Date) {
			continue
		}
		for _, c := range schema.Numeric {
			a, b := rows[i].Features[c], rows[i-1].Features[c]
			if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
				t.Fatalf("%s differs within %s", c, domain.DateKey(rows[i].Date))
			}
		}
	}
}

func TestBuildDropIncomplete(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DropIncomplete = true
	rows, schema, err := Build(makeWide(25, 2), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// 20-day trailing mean needs 20 prior days, leaving days 20..24
	if len(rows) != 10 {
		t.Fatalf("expected 10 complete rows, got %d", len(rows))
	}
	for _, r := range rows {
		for _, c := range schema.Numeric {
			if math.IsNaN(r.Features[c]) {
				t.Fatalf("row %s still has NaN %s", domain.DateKey(r.Date), c)
			}
		}
	}
}

func TestBuildRejectsMissingMetric(t *testing.T) {
	wide := makeWide(3, 1)
	delete(wide[1].Scalars, domain.MetricParkinsonVol)
	_, _, err := Build(wide, DefaultConfig())
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity, got %v", err)
	}
}

func TestCalendarOneHot(t *testing.T) {
	// 2016-06-24 was a Friday
	cal := Calendar(time.Date(2016, 6, 24, 15, 0, 0, 0, time.UTC))
	if len(cal) != 23 {
		t.Fatalf("expected 23 calendar columns, got %d", len(cal))
	}
	if cal["dow_4"] != 1 || cal["month_6"] != 1 || cal["quarter_2"] != 1 {
		t.Fatalf("unexpected indicators: %v", cal)
	}
	var sum float64
	for _, v := range cal {
		sum += v
	}
	if sum != 3 {
		t.Fatalf("expected exactly three hot columns, got %v", sum)
	}
}

func TestDeriveLabels(t *testing.T) {
	wide := makeWide(3, 1)
	wide[2].Scalars = map[string]float64{domain.MetricRealizedVol: 0.5}
	got := DeriveLabels(wide)
	if got[0].Label != 0 || got[1].Label != 1 || got[2].Label != 0 {
		t.Fatalf("unexpected labels %d %d %d", got[0].Label, got[1].Label, got[2].Label)
	}
}

func TestCheckLeakage(t *testing.T) {
	schema := DefaultSchema()
	if err := schema.Validate(); err != nil {
		t.Fatalf("default schema invalid: %v", err)
	}
	rows := []domain.TallRecord{{Features: map[string]float64{domain.MetricTrueRangeVol: 1}}}
	if err := CheckLeakage(schema, rows); !errors.Is(err, domain.ErrLeakage) {
		t.Fatalf("expected ErrLeakage for leftover column, got %v", err)
	}
	bad := Schema{Version: "v1", Numeric: []string{domain.MetricRealizedVol}}
	if err := CheckLeakage(bad, nil); !errors.Is(err, domain.ErrLeakage) {
		t.Fatalf("expected ErrLeakage for schema column, got %v", err)
	}
}

func TestDefaultSchemaOrder(t *testing.T) {
	s := DefaultSchema()
	if len(s.Numeric) != 15+9+23 {
		t.Fatalf("expected 47 columns, got %d", len(s.Numeric))
	}
	if s.Numeric[0] != "realized_vol_lag_1" || s.Numeric[1] != "tr_vol_lag_1" || s.Numeric[15] != "realized_vol_ma_5" {
		t.Fatalf("unexpected ordering: %v", s.Numeric[:16])
	}
	if s.Numeric[24] != "dow_0" {
		t.Fatalf("expected calendar columns after history, got %s", s.Numeric[24])
	}
}

// makeWide builds n consecutive days whose metric values equal the day index.
func makeWide(n, headlines int) []domain.WideRecord {
	start := time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC)
	out := make([]domain.WideRecord, 0, n)
	for i := 0; i < n; i++ {
		var w domain.WideRecord
		w.Date = start.AddDate(0, 0, i)
		w.Label = i % 2
		for h := 0; h < headlines; h++ {
			w.Headlines[h] = "headline " + string(rune('a'+h)) + " market moves"
		}
		w.Scalars = map[string]float64{
			domain.MetricRealizedVol:  float64(i),
			domain.MetricTrueRangeVol: float64(i) * 2,
			domain.MetricParkinsonVol: float64(i) * 3,
		}
		out = append(out, w)
	}
	return out
}
