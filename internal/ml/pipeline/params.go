package pipeline

import (
	"encoding/json"
	"fmt"
)

const (
	ClassifierXGBoost = "xgboost"
	ClassifierLogReg  = "logreg"
)

// Params are the hyperparameters of one pipeline fit.
type Params struct {
	MaxFeatures     int     `json:"max_features"`
	NgramMax        int     `json:"ngram_max"`
	MaxDepth        int     `json:"max_depth"`
	NEstimators     int     `json:"n_estimators"`
	LearningRate    float64 `json:"learning_rate"`
	Subsample       float64 `json:"subsample"`
	ColSampleByTree float64 `json:"colsample_bytree"`
	Classifier      string  `json:"classifier,omitempty"`
}

func DefaultParams() Params {
	return Params{
		MaxFeatures:     1000,
		NgramMax:        1,
		MaxDepth:        6,
		NEstimators:     100,
		LearningRate:    0.1,
		Subsample:       1,
		ColSampleByTree: 1,
		Classifier:      ClassifierXGBoost,
	}
}

func (p Params) Validate() error {
	if p.MaxFeatures < 0 {
		return fmt.Errorf("max_features must be >= 0, got %d", p.MaxFeatures)
	}
	if p.NgramMax < 1 {
		return fmt.Errorf("ngram_max must be >= 1, got %d", p.NgramMax)
	}
	if p.Subsample < 0 || p.Subsample > 1 || p.ColSampleByTree < 0 || p.ColSampleByTree > 1 {
		return fmt.Errorf("subsample fractions must be within [0,1]")
	}
	switch p.Classifier {
	case "", ClassifierXGBoost, ClassifierLogReg:
		return nil
	default:
		return fmt.Errorf("unknown classifier %q", p.Classifier)
	}
}

func (p Params) JSON() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}
