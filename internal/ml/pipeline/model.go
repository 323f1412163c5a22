package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/features"
	"headline-vol/internal/ml/models/logreg"
	"headline-vol/internal/ml/models/xgboost"
	"headline-vol/internal/ml/text"
)

const ArtifactFormat = "headline-vol/pipeline-json"

type classifier interface {
	PredictProb(sample []float64) float64
	MarshalBinary() ([]byte, error)
}

// Model is a fitted text+numeric classifier. It is immutable after Fit and
// safe for concurrent prediction.
type Model struct {
	schema     features.Schema
	params     Params
	vectorizer *text.Vectorizer
	kind       string
	clf        classifier
	trainedAt  time.Time
}

type artifact struct {
	Format     string           `json:"format"`
	Schema     features.Schema  `json:"schema"`
	Params     Params           `json:"params"`
	Vectorizer *text.Vectorizer `json:"vectorizer"`
	Classifier string           `json:"classifier"`
	Booster    []byte           `json:"booster"`
	TrainedAt  time.Time        `json:"trained_at"`
}

// Fit learns the vocabulary, TF-IDF weights and classifier from rows.
func Fit(rows []domain.TallRecord, schema features.Schema, params Params) (*Model, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no training rows", domain.ErrDataIntegrity)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDataIntegrity, err)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if err := features.CheckLeakage(schema, rows); err != nil {
		return nil, err
	}

	docs := make([]string, len(rows))
	labels := make([]int, len(rows))
	blank := 0
	classes := make(map[int]struct{}, 2)
	for i, r := range rows {
		docs[i] = r.Headline
		if strings.TrimSpace(r.Headline) == "" {
			blank++
		}
		if r.Label != 0 && r.Label != 1 {
			return nil, fmt.Errorf("%w: label %d on %s is not binary", domain.ErrDataIntegrity, r.Label, domain.DateKey(r.Date))
		}
		labels[i] = r.Label
		classes[r.Label] = struct{}{}
	}
	if blank == len(rows) {
		return nil, fmt.Errorf("%w: every headline is blank", domain.ErrDataIntegrity)
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("%w: training labels contain a single class", domain.ErrDataIntegrity)
	}

	vec := text.NewVectorizer(params.MaxFeatures, params.NgramMax)
	if err := vec.Fit(docs); err != nil {
		return nil, err
	}

	m := &Model{schema: schema, params: params, vectorizer: vec, kind: params.Classifier, trainedAt: time.Now().UTC()}
	if m.kind == "" {
		m.kind = ClassifierXGBoost
	}
	matrix, err := m.matrix(rows)
	if err != nil {
		return nil, err
	}
	names := append(vec.FeatureNames(), schema.Numeric...)

	switch m.kind {
	case ClassifierLogReg:
		clf, err := logreg.Train(matrix, labels, names, logreg.DefaultTrainOptions())
		if err != nil {
			return nil, err
		}
		m.clf = clf
	default:
		clf, err := xgboost.Train(matrix, labels, names, xgboost.TrainOptions{
			Rounds:       params.NEstimators,
			LearningRate: params.LearningRate,
			MaxDepth:     params.MaxDepth,
			Subsample:    params.Subsample,
			ColSubsample: params.ColSampleByTree,
		})
		if err != nil {
			return nil, err
		}
		m.clf = clf
	}
	return m, nil
}

// PredictProba returns P(vol_up=1) for each row.
func (m *Model) PredictProba(rows []domain.TallRecord) ([]float64, error) {
	if m == nil || m.clf == nil {
		return nil, errors.New("model is not fitted")
	}
	if err := features.CheckLeakage(m.schema, rows); err != nil {
		return nil, err
	}
	matrix, err := m.matrix(rows)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(matrix))
	for i, x := range matrix {
		out[i] = m.clf.PredictProb(x)
	}
	return out, nil
}

// Predict pairs each row's headline with its probability and class.
func (m *Model) Predict(rows []domain.TallRecord) ([]domain.HeadlinePrediction, error) {
	probs, err := m.PredictProba(rows)
	if err != nil {
		return nil, err
	}
	out := make([]domain.HeadlinePrediction, len(rows))
	for i := range rows {
		out[i] = domain.NewHeadlinePrediction(rows[i].Headline, probs[i])
	}
	return out, nil
}

func (m *Model) Schema() features.Schema { return m.schema }
func (m *Model) Params() Params          { return m.params }
func (m *Model) TrainedAt() time.Time    { return m.trainedAt }
func (m *Model) VocabularySize() int     { return len(m.vectorizer.Vocabulary) }

func (m *Model) matrix(rows []domain.TallRecord) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		tv, err := m.vectorizer.Transform(r.Headline)
		if err != nil {
			return nil, err
		}
		x := make([]float64, 0, len(tv)+len(m.schema.Numeric))
		x = append(x, tv...)
		for _, c := range m.schema.Numeric {
			v, ok := r.Features[c]
			if !ok {
				return nil, fmt.Errorf("%w: row %s is missing column %q", domain.ErrDataIntegrity, domain.DateKey(r.Date), c)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			x = append(x, v)
		}
		out[i] = x
	}
	return out, nil
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil || m.clf == nil {
		return nil, errors.New("nil model")
	}
	blob, err := m.clf.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(artifact{
		Format:     ArtifactFormat,
		Schema:     m.schema,
		Params:     m.params,
		Vectorizer: m.vectorizer,
		Classifier: m.kind,
		Booster:    blob,
		TrainedAt:  m.trainedAt,
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
	if a.Format != ArtifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %q", a.Format)
	}
	if a.Vectorizer == nil {
		return nil, errors.New("artifact has no vectorizer")
	}
	m := &Model{schema: a.Schema, params: a.Params, vectorizer: a.Vectorizer, kind: a.Classifier, trainedAt: a.TrainedAt}
	switch a.Classifier {
	case ClassifierLogReg:
		clf, err := logreg.UnmarshalBinary(a.Booster)
		if err != nil {
			return nil, err
		}
		m.clf = clf
	default:
		clf, err := xgboost.UnmarshalBinary(a.Booster)
		if err != nil {
			return nil, err
		}
		m.clf = clf
	}
	return m, nil
}
