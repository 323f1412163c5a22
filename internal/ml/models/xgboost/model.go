package xgboost

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"
)

// TrainOptions are the booster hyperparameters. Subsample and ColSubsample
// are the per-round row and column fractions in (0,1]; values outside that
// range mean "use everything".
//
// boo draws its per-round samples from the unseeded global math/rand/v2
// source, so fits with either fraction below 1 are not reproducible. With
// both at 1 no sampling happens and a fit is fully deterministic.
type TrainOptions struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
	Subsample    float64
	ColSubsample float64
}

type artifact struct {
	FeatureNames []string `json:"feature_names"`
	ModelText    string   `json:"model_text"`
}

type Model struct {
	featureNames []string
	boost        *boo.MultiClass
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Rounds:       100,
		LearningRate: 0.1,
		MaxDepth:     6,
		Subsample:    1,
		ColSubsample: 1,
	}
}

// Deterministic reports whether a fit with opts samples nothing.
func (o TrainOptions) Deterministic() bool {
	return fraction(o.Subsample) == 1 && fraction(o.ColSubsample) == 1
}

// Train fits a binary booster on every row and column; row and column
// sampling happens inside boo once per boosting round.
func Train(samples [][]float64, labels []int, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, errors.New("invalid training dataset")
	}
	width := len(samples[0])
	if width == 0 {
		return nil, errors.New("empty feature vectors")
	}
	if len(featureNames) != width {
		featureNames = make([]string, width)
		for i := range featureNames {
			featureNames[i] = "f"
		}
	}

	intLabels := make([]int, len(labels))
	classSet := make(map[int]struct{}, 2)
	for i, l := range labels {
		if l == 1 {
			intLabels[i] = 1
		}
		classSet[intLabels[i]] = struct{}{}
	}
	if len(classSet) < 2 {
		return nil, errors.New("xgboost requires at least two classes")
	}

	o := boosterOptions(opts)
	if o.MinSample > len(samples)/2 {
		o.MinSample = max(1, len(samples)/2)
	}
	model := boo.NewMultiClass(&utils.DataBunch{
		Data:   samples,
		Labels: intLabels,
		Keys:   append([]string(nil), featureNames...),
	}, o)
	if model == nil {
		return nil, errors.New("failed to train xgboost model")
	}
	if model.Classes() == 0 {
		return nil, errors.New("xgboost trained no rounds: row samples below the minimum")
	}
	return &Model{featureNames: append([]string(nil), featureNames...), boost: model}, nil
}

// boosterOptions maps opts onto boo's options. boo skips any round whose
// row sample is smaller than MinSample, and a full-data round carries no
// sample at all, so MinSample is cleared when rows are not subsampled.
func boosterOptions(opts TrainOptions) *boo.Options {
	def := DefaultTrainOptions()
	o := boo.DefaultXOptions()
	o.Rounds = def.Rounds
	if opts.Rounds > 0 {
		o.Rounds = opts.Rounds
	}
	o.LearningRate = def.LearningRate
	if opts.LearningRate > 0 {
		o.LearningRate = opts.LearningRate
	}
	o.MaxDepth = def.MaxDepth
	if opts.MaxDepth > 0 {
		o.MaxDepth = opts.MaxDepth
	}
	o.SubSample = fraction(opts.Subsample)
	o.ColSubSample = fraction(opts.ColSubsample)
	if o.SubSample == 1 {
		o.MinSample = 0
	}
	o.Verbose = false
	o.EarlyStop = 0
	return o
}

func fraction(v float64) float64 {
	if v <= 0 || v >= 1 || math.IsNaN(v) {
		return 1
	}
	return v
}

// PredictProb returns P(class 1) for a full-width sample.
func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || m.boost == nil {
		return 0.5
	}
	probs := m.boost.PredictSingle(sample)
	labels := m.boost.ClassLabels()
	for i := range labels {
		if labels[i] == 1 && i < len(probs) {
			return clamp01(probs[i])
		}
	}
	if len(probs) == 0 {
		return 0.5
	}
	return clamp01(probs[len(probs)-1])
}

// Rounds is the number of boosting rounds that produced trees. boo keeps one
// ensemble per round, and MultiClass.Classes reports how many there are.
func (m *Model) Rounds() int {
	if m == nil || m.boost == nil {
		return 0
	}
	return m.boost.Classes()
}

func (m *Model) PredictBatch(samples [][]float64) []float64 {
	out := make([]float64, len(samples))
	for i := range samples {
		out[i] = m.PredictProb(samples[i])
	}
	return out
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil || m.boost == nil {
		return nil, errors.New("nil model")
	}
	var buf bytes.Buffer
	if err := boo.JSONMultiClass(m.boost, "softmax", &buf); err != nil {
		return nil, err
	}
	return json.Marshal(artifact{
		FeatureNames: m.featureNames,
		ModelText:    buf.String(),
	})
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	model, err := boo.UnJSONMultiClass(bufio.NewReader(bytes.NewReader([]byte(a.ModelText))))
	if err != nil {
		return nil, err
	}
	return &Model{featureNames: append([]string(nil), a.FeatureNames...), boost: model}, nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.featureNames))
	copy(out, m.featureNames)
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
