package search

import (
	"context"
	"fmt"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/aggregate"
	"headline-vol/internal/ml/evaluate"
	"headline-vol/internal/ml/features"
	"headline-vol/internal/ml/pipeline"
)

// ValidationObjective fits on train and scores the daily mean_proba ROC AUC
// on val.
func ValidationObjective(train, val []domain.TallRecord, schema features.Schema) Objective {
	return func(ctx context.Context, params pipeline.Params) Outcome {
		if err := ctx.Err(); err != nil {
			return Outcome{Err: err}
		}
		model, err := pipeline.Fit(train, schema, params)
		if err != nil {
			return Outcome{Err: fmt.Errorf("fit: %w", err)}
		}
		report, err := EvaluateSplit(model, val, "val")
		if err != nil {
			return Outcome{Err: err}
		}
		mean := report.Daily[domain.PolicyMeanProba]
		if mean.AUC == nil {
			return Outcome{Err: fmt.Errorf("no mean_proba auc on validation split")}
		}
		return Outcome{Score: *mean.AUC, Report: report}
	}
}

// Predictor is the part of a fitted model needed for evaluation.
type Predictor interface {
	PredictProba(rows []domain.TallRecord) ([]float64, error)
}

// EvaluateSplit predicts rows, aggregates them per day and computes both
// headline and daily metrics.
func EvaluateSplit(model Predictor, rows []domain.TallRecord, split string) (evaluate.Report, error) {
	probs, err := model.PredictProba(rows)
	if err != nil {
		return evaluate.Report{}, fmt.Errorf("predict %s: %w", split, err)
	}
	labels := make([]int, len(rows))
	labeled := make([]aggregate.LabeledPrediction, len(rows))
	for i, r := range rows {
		labels[i] = r.Label
		labeled[i] = aggregate.LabeledPrediction{
			Date:       r.Date,
			Prediction: domain.NewHeadlinePrediction(r.Headline, probs[i]),
			TrueLabel:  aggregate.Label(r.Label),
		}
	}
	days, err := aggregate.ByDay(labeled)
	if err != nil {
		return evaluate.Report{}, err
	}
	daily, err := evaluate.Daily(days)
	if err != nil {
		return evaluate.Report{}, err
	}
	headline := evaluate.Headline(labels, probs, evaluate.Classes(probs))
	return evaluate.Report{Split: split, Headline: &headline, Daily: daily}, nil
}
