// Package logreg is an L2-regularised logistic regression used as the
// baseline classifier of the headline pipeline.
package logreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type TrainOptions struct {
	LearningRate float64
	Epochs       int
	L2           float64
}

type Artifact struct {
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	Means        []float64 `json:"means"`
	Stds         []float64 `json:"stds"`
	L2           float64   `json:"l2"`
	LearningRate float64   `json:"learning_rate"`
	Epochs       int       `json:"epochs"`
}

type Model struct {
	artifact Artifact
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate: 0.1,
		Epochs:       300,
		L2:           0.0001,
	}
}

// Train runs full-batch gradient descent on standardised features.
func Train(samples [][]float64, labels []int, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, errors.New("invalid training dataset")
	}
	featCount := len(samples[0])
	if featCount == 0 {
		return nil, errors.New("empty feature vectors")
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultTrainOptions().LearningRate
	}
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultTrainOptions().Epochs
	}
	if opts.L2 < 0 {
		opts.L2 = DefaultTrainOptions().L2
	}

	target := make([]float64, len(labels))
	var positives int
	for i, l := range labels {
		if l == 1 {
			target[i] = 1
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return nil, errors.New("logistic regression requires at least two classes")
	}

	means := make([]float64, featCount)
	stds := make([]float64, featCount)
	column := make([]float64, len(samples))
	for j := 0; j < featCount; j++ {
		for i := range samples {
			column[i] = samples[i][j]
		}
		means[j], stds[j] = stat.PopMeanStdDev(column, nil)
		if stds[j] == 0 || math.IsNaN(stds[j]) {
			stds[j] = 1
		}
	}

	normalized := make([][]float64, len(samples))
	for i := range samples {
		normalized[i] = normalize(samples[i], means, stds)
	}

	weights := make([]float64, featCount)
	grads := make([]float64, featCount)
	bias := 0.0
	n := float64(len(samples))
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grads {
			grads[j] = 0
		}
		gradBias := 0.0
		for i, x := range normalized {
			residual := sigmoid(floats.Dot(weights, x)+bias) - target[i]
			floats.AddScaled(grads, residual, x)
			gradBias += residual
		}
		floats.Scale(1/n, grads)
		floats.AddScaled(grads, opts.L2, weights)
		floats.AddScaled(weights, -opts.LearningRate, grads)
		bias -= opts.LearningRate * (gradBias / n)
	}

	if len(featureNames) != featCount {
		featureNames = make([]string, featCount)
		for i := range featureNames {
			featureNames[i] = fmt.Sprintf("f%d", i)
		}
	}

	return &Model{artifact: Artifact{
		FeatureNames: append([]string(nil), featureNames...),
		Weights:      weights,
		Bias:         bias,
		Means:        means,
		Stds:         stds,
		L2:           opts.L2,
		LearningRate: opts.LearningRate,
		Epochs:       opts.Epochs,
	}}, nil
}

func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || len(sample) != len(m.artifact.Weights) {
		return 0.5
	}
	x := normalize(sample, m.artifact.Means, m.artifact.Stds)
	return sigmoid(floats.Dot(m.artifact.Weights, x) + m.artifact.Bias)
}

func (m *Model) PredictBatch(samples [][]float64) []float64 {
	probs := make([]float64, len(samples))
	for i := range samples {
		probs[i] = m.PredictProb(samples[i])
	}
	return probs
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(m.artifact)
}

func UnmarshalBinary(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if len(a.Weights) == 0 || len(a.Weights) != len(a.Means) || len(a.Weights) != len(a.Stds) {
		return nil, errors.New("invalid artifact")
	}
	return &Model{artifact: a}, nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.artifact.FeatureNames))
	copy(out, m.artifact.FeatureNames)
	return out
}

func sigmoid(x float64) float64 {
	if x > 35 {
		return 1
	}
	if x < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func normalize(in, means, stds []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		out[i] = (in[i] - means[i]) / stds[i]
	}
	return out
}
