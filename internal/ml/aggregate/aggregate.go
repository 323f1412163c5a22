// Package aggregate collapses per-headline predictions into one daily
// decision under each policy.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"headline-vol/internal/domain"

	"gonum.org/v1/gonum/stat"
)

// LabeledPrediction is a headline prediction tagged with its day and the
// day's true label, as produced when scoring a validation or test table.
type LabeledPrediction struct {
	Date       time.Time
	Prediction domain.HeadlinePrediction
	TrueLabel  *int
}

// Day aggregates one day's predictions. An empty group is rejected.
func Day(date time.Time, preds []domain.HeadlinePrediction, trueLabel *int) (domain.DailyAggregate, error) {
	if len(preds) == 0 {
		return domain.DailyAggregate{}, fmt.Errorf("%w: %s", domain.ErrEmptyGroup, domain.DateKey(date))
	}

	probs := make([]float64, len(preds))
	votes := 0
	best := 0
	for i, p := range preds {
		probs[i] = p.Probability
		votes += p.Class
		if p.Probability > preds[best].Probability {
			best = i
		}
	}

	mean := stat.Mean(probs, nil)
	maxP := preds[best].Probability
	majority := 0
	if votes*2 >= len(preds) {
		majority = 1
	}

	return domain.DailyAggregate{
		Date:         domain.TruncateDay(date),
		NumHeadlines: len(preds),
		TrueLabel:    copyLabel(trueLabel),
		MeanProba:    domain.PolicyOutcome{Probability: &mean, Class: domain.ClassFor(mean)},
		MajorityVote: domain.PolicyOutcome{Class: majority},
		MaxProba:     domain.PolicyOutcome{Probability: &maxP, Class: preds[best].Class},
	}, nil
}

// ByDay groups rows by calendar date and aggregates each group, ascending by
// date. The true label of a group comes from its first row.
func ByDay(rows []LabeledPrediction) ([]domain.DailyAggregate, error) {
	groups := make(map[string][]LabeledPrediction)
	keys := make([]string, 0)
	for _, r := range rows {
		k := domain.DateKey(r.Date)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Strings(keys)

	out := make([]domain.DailyAggregate, 0, len(keys))
	for _, k := range keys {
		group := groups[k]
		preds := make([]domain.HeadlinePrediction, len(group))
		for i, r := range group {
			preds[i] = r.Prediction
		}
		day, err := Day(group[0].Date, preds, group[0].TrueLabel)
		if err != nil {
			return nil, err
		}
		out = append(out, day)
	}
	return out, nil
}

// Label returns a pointer to a copy of v.
func Label(v int) *int {
	return &v
}

func copyLabel(v *int) *int {
	if v == nil {
		return nil
	}
	return Label(*v)
}
