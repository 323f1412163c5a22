package scoring

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/aggregate"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NoHeadlinesError is reported on days without a single non-blank headline.
const NoHeadlinesError = "no headlines provided"

// Predictor is a fitted model. The scorer never refits it.
type Predictor interface {
	PredictProba(rows []domain.TallRecord) ([]float64, error)
}

// DailyResult is the outcome of scoring one day.
type DailyResult struct {
	Aggregate    domain.DailyAggregate
	Predictions  []domain.HeadlinePrediction
	ModelVersion string
	Error        string

	// Features is the historical snapshot every headline was scored with.
	Features map[string]float64
}

// DetailedRecord is one scored headline as persisted next to the daily record.
type DetailedRecord struct {
	Date         string  `json:"date"`
	Headline     string  `json:"headline"`
	Probability  float64 `json:"prediction_proba"`
	Class        int     `json:"prediction_class"`
	ModelVersion string  `json:"model_version"`

	// Features are the lagged volatility and calendar inputs of the day,
	// kept for feature drift checks.
	Features map[string]float64 `json:"features,omitempty"`
}

type Scorer struct {
	tracer trace.Tracer
}

func NewScorer(tracer trace.Tracer) *Scorer {
	return &Scorer{tracer: tracer}
}

// ScoreDay predicts every non-blank headline of date against the day's
// historical snapshot and aggregates the result. A day without headlines
// short-circuits to the neutral record instead of calling the aggregator.
func (s *Scorer) ScoreDay(ctx context.Context, model Predictor, modelVersion string, date time.Time, headlines []string, snapshot domain.HistoricalFeatureSet, trueLabel *int) (DailyResult, error) {
	_, span := s.tracer.Start(ctx, "scorer.score-day")
	defer span.End()

	day := domain.TruncateDay(date)
	span.SetAttributes(attribute.String("date", domain.DateKey(day)), attribute.String("model_version", modelVersion))

	rows := make([]domain.TallRecord, 0, len(headlines))
	for _, h := range headlines {
		if strings.TrimSpace(h) == "" {
			continue
		}
		rows = append(rows, domain.TallRecord{Date: day, Headline: h, Features: maps.Clone(snapshot.Values)})
	}
	if len(rows) == 0 {
		return EmptyResult(day, modelVersion, trueLabel), nil
	}

	probs, err := model.PredictProba(rows)
	if err != nil {
		span.RecordError(err)
		return DailyResult{}, fmt.Errorf("score %s: %w", domain.DateKey(day), err)
	}
	if len(probs) != len(rows) {
		return DailyResult{}, fmt.Errorf("score %s: model returned %d probabilities for %d headlines", domain.DateKey(day), len(probs), len(rows))
	}
	preds := make([]domain.HeadlinePrediction, len(rows))
	for i := range rows {
		preds[i] = domain.NewHeadlinePrediction(rows[i].Headline, probs[i])
	}
	agg, err := aggregate.Day(day, preds, trueLabel)
	if err != nil {
		return DailyResult{}, err
	}
	span.SetAttributes(attribute.Int("num_headlines", agg.NumHeadlines))
	return DailyResult{Aggregate: agg, Predictions: preds, ModelVersion: modelVersion, Features: maps.Clone(snapshot.Values)}, nil
}

// EmptyResult is the neutral record for a day without headlines.
func EmptyResult(day time.Time, modelVersion string, trueLabel *int) DailyResult {
	neutral := 0.5
	maxP := 0.5
	var label *int
	if trueLabel != nil {
		label = aggregate.Label(*trueLabel)
	}
	return DailyResult{
		Aggregate: domain.DailyAggregate{
			Date:         domain.TruncateDay(day),
			NumHeadlines: 0,
			TrueLabel:    label,
			MeanProba:    domain.PolicyOutcome{Probability: &neutral, Class: 0},
			MajorityVote: domain.PolicyOutcome{Class: 0},
			MaxProba:     domain.PolicyOutcome{Probability: &maxP, Class: 0},
		},
		ModelVersion: modelVersion,
		Error:        NoHeadlinesError,
	}
}

// Record flattens the result into the scoring-consumer contract.
func (r DailyResult) Record(now time.Time) domain.ScoringRecord {
	rec := domain.ScoringRecord{
		Date:                   domain.DateKey(r.Aggregate.Date),
		PredictionMeanClass:    r.Aggregate.MeanProba.Class,
		PredictionMajorityVote: r.Aggregate.MajorityVote.Class,
		PredictionMaxClass:     r.Aggregate.MaxProba.Class,
		NumHeadlines:           r.Aggregate.NumHeadlines,
		ModelVersion:           r.ModelVersion,
		TrueLabel:              r.Aggregate.TrueLabel,
		Timestamp:              now.UTC(),
		Error:                  r.Error,
	}
	if p := r.Aggregate.MeanProba.Probability; p != nil {
		rec.PredictionMeanProba = *p
	}
	if p := r.Aggregate.MaxProba.Probability; p != nil {
		rec.PredictionMaxProba = *p
	}
	return rec
}

// Detailed lists the per-headline predictions of the day.
func (r DailyResult) Detailed() []DetailedRecord {
	out := make([]DetailedRecord, len(r.Predictions))
	for i, p := range r.Predictions {
		out[i] = DetailedRecord{
			Date:         domain.DateKey(r.Aggregate.Date),
			Headline:     p.Headline,
			Probability:  p.Probability,
			Class:        p.Class,
			ModelVersion: r.ModelVersion,
			Features:     r.Features,
		}
	}
	return out
}

// Confidence buckets a probability by its distance from the decision
// threshold.
func Confidence(p float64) string {
	switch {
	case p >= 0.7 || p <= 0.3:
		return "High"
	case p >= 0.6 || p <= 0.4:
		return "Medium"
	default:
		return "Low"
	}
}
