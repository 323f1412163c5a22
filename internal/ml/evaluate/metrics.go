package evaluate

import (
	"fmt"
	"math"
	"sort"

	"headline-vol/internal/domain"
)

// Metrics are binary classification scores. AUC is nil when the scored
// output carries no probability (majority vote).
type Metrics struct {
	Accuracy  float64  `json:"accuracy"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1        float64  `json:"f1"`
	AUC       *float64 `json:"roc_auc,omitempty"`
	N         int      `json:"n"`
}

// Headline scores per-headline predictions. Classes are taken as given;
// probs may be nil, in which case AUC is omitted.
func Headline(labels []int, probs []float64, classes []int) Metrics {
	m := classification(labels, classes)
	if probs != nil && len(probs) == len(labels) {
		auc := AUC(labels, probs)
		m.AUC = &auc
	}
	return m
}

// Daily scores each aggregation policy over the labelled days. AUC is
// reported for mean_proba and max_proba only.
func Daily(days []domain.DailyAggregate) (map[domain.Policy]Metrics, error) {
	labels := make([]int, 0, len(days))
	labelled := make([]domain.DailyAggregate, 0, len(days))
	for _, d := range days {
		if d.TrueLabel == nil {
			continue
		}
		labels = append(labels, *d.TrueLabel)
		labelled = append(labelled, d)
	}
	if len(labelled) == 0 {
		return nil, fmt.Errorf("%w: no labelled days to evaluate", domain.ErrDataIntegrity)
	}

	out := make(map[domain.Policy]Metrics, len(domain.Policies))
	for _, policy := range domain.Policies {
		classes := make([]int, len(labelled))
		var probs []float64
		if policy != domain.PolicyMajorityVote {
			probs = make([]float64, len(labelled))
		}
		for i, d := range labelled {
			o, _ := d.Outcome(policy)
			classes[i] = o.Class
			if probs != nil && o.Probability != nil {
				probs[i] = *o.Probability
			}
		}
		out[policy] = Headline(labels, probs, classes)
	}
	return out, nil
}

// AUC is the rank-based ROC area with averaged ranks for ties. A ground
// truth with a single class yields 0.5.
func AUC(labels []int, probs []float64) float64 {
	type pair struct {
		p float64
		y int
	}
	pairs := make([]pair, len(labels))
	pos := 0.0
	neg := 0.0
	for i := range labels {
		pairs[i] = pair{p: probs[i], y: labels[i]}
		if labels[i] == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].p < pairs[j].p })

	sumRankPos := 0.0
	for i := 0; i < len(pairs); {
		j := i + 1
		for j < len(pairs) && pairs[j].p == pairs[i].p {
			j++
		}
		// ranks are 1-based: positions i+1..j
		avgRank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if pairs[k].y == 1 {
				sumRankPos += avgRank
			}
		}
		i = j
	}
	auc := (sumRankPos - (pos*(pos+1))/2) / (pos * neg)
	if math.IsNaN(auc) || math.IsInf(auc, 0) {
		return 0.5
	}
	return auc
}

func classification(labels, classes []int) Metrics {
	n := len(labels)
	if n == 0 || len(classes) != n {
		return Metrics{}
	}
	var tp, fp, tn, fn float64
	for i := 0; i < n; i++ {
		y, pred := labels[i], classes[i]
		switch {
		case pred == 1 && y == 1:
			tp++
		case pred == 1 && y != 1:
			fp++
		case pred != 1 && y != 1:
			tn++
		default:
			fn++
		}
	}
	precision := 0.0
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	recall := 0.0
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return Metrics{
		Accuracy:  (tp + tn) / float64(n),
		Precision: precision,
		Recall:    recall,
		F1:        f1,
		N:         n,
	}
}

// Classes applies the shared decision rule to probabilities.
func Classes(probs []float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		out[i] = domain.ClassFor(p)
	}
	return out
}
