package text

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"headline-vol/internal/domain"

	"gonum.org/v1/gonum/floats"
)

// Vectorizer turns headlines into L2-normalised TF-IDF vectors over a fixed
// vocabulary learned at fit time.
type Vectorizer struct {
	MaxFeatures int       `json:"max_features"`
	MaxNgram    int       `json:"max_ngram"`
	Vocabulary  []string  `json:"vocabulary"`
	IDF         []float64 `json:"idf"`

	index map[string]int
}

func NewVectorizer(maxFeatures, maxNgram int) *Vectorizer {
	return &Vectorizer{MaxFeatures: maxFeatures, MaxNgram: maxNgram}
}

// Fit learns the vocabulary (the MaxFeatures most frequent terms, ties broken
// alphabetically, then sorted alphabetically) and smoothed IDF weights.
func (v *Vectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w: no documents to fit", domain.ErrDataIntegrity)
	}
	counts := make(map[string]int)
	docTerms := make([]map[string]int, len(docs))
	for i, d := range docs {
		tf := termCounts(d, v.MaxNgram)
		docTerms[i] = tf
		for term, c := range tf {
			counts[term] += c
		}
	}
	if len(counts) == 0 {
		return fmt.Errorf("%w: empty vocabulary; documents contain only stop words or blanks", domain.ErrDataIntegrity)
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	v.Vocabulary = terms
	v.buildIndex()

	df := make([]float64, len(terms))
	for _, tf := range docTerms {
		for term := range tf {
			if j, ok := v.index[term]; ok {
				df[j]++
			}
		}
	}
	n := float64(len(docs))
	v.IDF = make([]float64, len(terms))
	for j := range df {
		v.IDF[j] = math.Log((1+n)/(1+df[j])) + 1
	}
	return nil
}

// Transform returns the dense TF-IDF vector for doc. Out-of-vocabulary terms
// are ignored; a document with no known terms maps to the zero vector.
func (v *Vectorizer) Transform(doc string) ([]float64, error) {
	if len(v.Vocabulary) == 0 || len(v.IDF) != len(v.Vocabulary) || v.index == nil {
		return nil, errors.New("vectorizer is not fitted")
	}
	out := make([]float64, len(v.Vocabulary))
	for term, c := range termCounts(doc, v.MaxNgram) {
		if j, ok := v.index[term]; ok {
			out[j] = float64(c) * v.IDF[j]
		}
	}
	if norm := floats.Norm(out, 2); norm > 0 {
		floats.Scale(1/norm, out)
	}
	return out, nil
}

// FeatureNames prefixes every vocabulary term so text columns cannot collide
// with numeric ones.
func (v *Vectorizer) FeatureNames() []string {
	out := make([]string, len(v.Vocabulary))
	for i, t := range v.Vocabulary {
		out[i] = "text__" + t
	}
	return out
}

// UnmarshalJSON restores a fitted vectorizer, rebuilding the term index.
func (v *Vectorizer) UnmarshalJSON(data []byte) error {
	type plain Vectorizer
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if len(p.IDF) != len(p.Vocabulary) {
		return fmt.Errorf("%w: vectorizer has %d terms but %d idf weights", domain.ErrDataIntegrity, len(p.Vocabulary), len(p.IDF))
	}
	*v = Vectorizer(p)
	v.buildIndex()
	return nil
}

func (v *Vectorizer) buildIndex() {
	v.index = make(map[string]int, len(v.Vocabulary))
	for i, t := range v.Vocabulary {
		v.index[t] = i
	}
}

func termCounts(doc string, maxN int) map[string]int {
	out := make(map[string]int)
	for _, term := range Terms(Tokenize(doc), maxN) {
		out[term]++
	}
	return out
}
