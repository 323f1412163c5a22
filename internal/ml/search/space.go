package search

import (
	"math/rand/v2"

	"headline-vol/internal/ml/pipeline"
)

// Uniform is a continuous range sampled uniformly.
type Uniform struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Space is the hyperparameter search space.
type Space struct {
	MaxFeatures  []int    `json:"max_features"`
	NgramMax     []int    `json:"ngram_max"`
	MaxDepth     []int    `json:"max_depth"`
	NEstimators  []int    `json:"n_estimators"`
	LearningRate Uniform  `json:"learning_rate"`
	Subsample    Uniform  `json:"subsample"`
	ColSample    Uniform  `json:"colsample_bytree"`
	Classifiers  []string `json:"classifier"`
}

func DefaultSpace() Space {
	return Space{
		MaxFeatures:  []int{500, 800, 1000, 1500},
		NgramMax:     []int{1, 2},
		MaxDepth:     []int{3, 4, 5, 6, 7},
		NEstimators:  []int{50, 100, 150, 200},
		LearningRate: Uniform{Low: 0.01, High: 0.3},
		Subsample:    Uniform{Low: 0.6, High: 1.0},
		ColSample:    Uniform{Low: 0.6, High: 1.0},
		Classifiers:  []string{pipeline.ClassifierXGBoost},
	}
}

// Sampler proposes the next parameter set. Implementations need not be safe
// for concurrent use; the driver samples from one goroutine.
type Sampler interface {
	Sample(space Space) pipeline.Params
}

// RandomSampler draws every dimension independently.
type RandomSampler struct {
	rng *rand.Rand
}

func NewRandomSampler(seed uint64) *RandomSampler {
	return &RandomSampler{rng: rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))}
}

func (s *RandomSampler) Sample(space Space) pipeline.Params {
	p := pipeline.DefaultParams()
	p.MaxFeatures = s.choice(space.MaxFeatures, p.MaxFeatures)
	p.NgramMax = s.choice(space.NgramMax, p.NgramMax)
	p.MaxDepth = s.choice(space.MaxDepth, p.MaxDepth)
	p.NEstimators = s.choice(space.NEstimators, p.NEstimators)
	p.LearningRate = s.uniform(space.LearningRate, p.LearningRate)
	p.Subsample = s.uniform(space.Subsample, p.Subsample)
	p.ColSampleByTree = s.uniform(space.ColSample, p.ColSampleByTree)
	p.Classifier = s.classifier(space.Classifiers, p.Classifier)
	return p
}

func (s *RandomSampler) choice(values []int, fallback int) int {
	if len(values) == 0 {
		return fallback
	}
	return values[s.rng.IntN(len(values))]
}

// classifier only draws when there is a choice, so a one-classifier space
// samples the same sequence as before classifiers were searchable.
func (s *RandomSampler) classifier(values []string, fallback string) string {
	switch len(values) {
	case 0:
		return fallback
	case 1:
		return values[0]
	}
	return values[s.rng.IntN(len(values))]
}

func (s *RandomSampler) uniform(u Uniform, fallback float64) float64 {
	if u.High <= u.Low {
		if u.High == u.Low && u.Low > 0 {
			return u.Low
		}
		return fallback
	}
	return u.Low + s.rng.Float64()*(u.High-u.Low)
}
