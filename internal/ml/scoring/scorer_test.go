package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"headline-vol/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubPredictor struct {
	probs map[string]float64
	calls int
	rows  []domain.TallRecord
	err   error
}

func (s *stubPredictor) PredictProba(rows []domain.TallRecord) ([]float64, error) {
	s.calls++
	s.rows = rows
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = s.probs[r.Headline]
	}
	return out, nil
}

var testDay = time.Date(2016, 6, 24, 0, 0, 0, 0, time.UTC)

func newScorer() *Scorer {
	return NewScorer(trace.NewNoopTracerProvider().Tracer("test"))
}

func snapshot() domain.HistoricalFeatureSet {
	return domain.HistoricalFeatureSet{Date: testDay, Values: map[string]float64{"realized_vol_lag_1": 0.2}}
}

func TestScoreDayThreeHeadlines(t *testing.T) {
	model := &stubPredictor{probs: map[string]float64{"a": 0.8, "b": 0.3, "c": 0.6}}
	res, err := newScorer().ScoreDay(context.Background(), model, "7", testDay, []string{"a", " ", "b", "c"}, snapshot(), nil)
	if err != nil {
		t.Fatalf("ScoreDay: %v", err)
	}
	rec := res.Record(testDay)
	if rec.NumHeadlines != 3 || math.Abs(rec.PredictionMeanProba-1.7/3) > 1e-12 || rec.PredictionMeanClass != 1 {
		t.Fatalf("unexpected mean fields %+v", rec)
	}
	if rec.PredictionMajorityVote != 1 || rec.PredictionMaxProba != 0.8 || rec.PredictionMaxClass != 1 {
		t.Fatalf("unexpected majority/max fields %+v", rec)
	}
	if rec.ModelVersion != "7" || rec.Date != "2016-06-24" || rec.Error != "" {
		t.Fatalf("unexpected metadata %+v", rec)
	}
	for _, r := range model.rows {
		if r.Features["realized_vol_lag_1"] != 0.2 || !r.Date.Equal(testDay) {
			t.Fatalf("snapshot not applied to row %+v", r)
		}
	}
	detailed := res.Detailed()
	if len(detailed) != 3 {
		t.Fatalf("expected 3 detailed records, got %d", len(detailed))
	}
	for _, d := range detailed {
		if d.Features["realized_vol_lag_1"] != 0.2 {
			t.Fatalf("expected snapshot features on detailed record, got %+v", d)
		}
	}
}

func TestScoreDayTwoHeadlines(t *testing.T) {
	model := &stubPredictor{probs: map[string]float64{"a": 0.6, "b": 0.3}}
	res, err := newScorer().ScoreDay(context.Background(), model, "1", testDay, []string{"a", "b"}, snapshot(), nil)
	if err != nil {
		t.Fatalf("ScoreDay: %v", err)
	}
	rec := res.Record(testDay)
	if math.Abs(rec.PredictionMeanProba-0.45) > 1e-12 || rec.PredictionMeanClass != 0 {
		t.Fatalf("unexpected mean %+v", rec)
	}
	if rec.PredictionMajorityVote != 1 || rec.PredictionMaxProba != 0.6 || rec.PredictionMaxClass != 1 {
		t.Fatalf("unexpected majority/max %+v", rec)
	}
}

func TestScoreDayEmpty(t *testing.T) {
	model := &stubPredictor{}
	res, err := newScorer().ScoreDay(context.Background(), model, "3", testDay, []string{"", "   "}, snapshot(), nil)
	if err != nil {
		t.Fatalf("ScoreDay: %v", err)
	}
	if model.calls != 0 {
		t.Fatal("expected model not to be called for an empty day")
	}
	rec := res.Record(testDay)
	if rec.NumHeadlines != 0 || rec.PredictionMeanProba != 0.5 || rec.PredictionMeanClass != 0 ||
		rec.PredictionMajorityVote != 0 || rec.PredictionMaxProba != 0.5 || rec.PredictionMaxClass != 0 {
		t.Fatalf("unexpected neutral record %+v", rec)
	}
	if rec.Error != NoHeadlinesError {
		t.Fatalf("expected error %q, got %q", NoHeadlinesError, rec.Error)
	}
}

func TestScoreDayPropagatesModelError(t *testing.T) {
	model := &stubPredictor{err: domain.ErrDataIntegrity}
	_, err := newScorer().ScoreDay(context.Background(), model, "1", testDay, []string{"a"}, snapshot(), nil)
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
}

func TestRecordJSONOmitsEmptyOptionalFields(t *testing.T) {
	model := &stubPredictor{probs: map[string]float64{"a": 0.9}}
	res, err := newScorer().ScoreDay(context.Background(), model, "1", testDay, []string{"a"}, snapshot(), nil)
	if err != nil {
		t.Fatalf("ScoreDay: %v", err)
	}
	b, err := json.Marshal(res.Record(testDay))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["true_label"]; ok {
		t.Fatal("expected true_label to be omitted")
	}
	if _, ok := m["error"]; ok {
		t.Fatal("expected error to be omitted")
	}
}

func TestConfidence(t *testing.T) {
	tests := map[float64]string{0.75: "High", 0.2: "High", 0.65: "Medium", 0.35: "Medium", 0.55: "Low", 0.5: "Low"}
	for p, want := range tests {
		if got := Confidence(p); got != want {
			t.Errorf("Confidence(%v) = %s, want %s", p, got, want)
		}
	}
}
