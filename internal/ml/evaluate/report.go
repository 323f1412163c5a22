package evaluate

import (
	"encoding/json"

	"headline-vol/internal/domain"
)

// Report bundles headline-level and daily-level metrics for one split.
type Report struct {
	Split    string                    `json:"split,omitempty"`
	Headline *Metrics                  `json:"headline,omitempty"`
	Daily    map[domain.Policy]Metrics `json:"daily,omitempty"`
}

// Flatten produces names like headline_accuracy or daily_mean_proba_roc_auc,
// prefixed with the split when one is set.
func (r Report) Flatten() map[string]float64 {
	out := make(map[string]float64)
	prefix := ""
	if r.Split != "" {
		prefix = r.Split + "_"
	}
	if r.Headline != nil {
		put(out, prefix+"headline", *r.Headline)
	}
	for policy, m := range r.Daily {
		put(out, prefix+"daily_"+string(policy), m)
	}
	return out
}

func (r Report) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// MergeFlat combines flattened reports; later keys win.
func MergeFlat(reports ...Report) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range reports {
		for k, v := range r.Flatten() {
			out[k] = v
		}
	}
	return out
}

func put(out map[string]float64, prefix string, m Metrics) {
	out[prefix+"_accuracy"] = m.Accuracy
	out[prefix+"_precision"] = m.Precision
	out[prefix+"_recall"] = m.Recall
	out[prefix+"_f1"] = m.F1
	if m.AUC != nil {
		out[prefix+"_roc_auc"] = *m.AUC
	}
}
