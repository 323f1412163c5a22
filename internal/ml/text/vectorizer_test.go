package text

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"headline-vol/internal/domain"
)

func TestTokenizeNormalisesAndDropsStopwords(t *testing.T) {
	got := Tokenize("The FED raises rates, a ＵＫ shock & Brexit!")
	want := []string{"fed", "raises", "rates", "uk", "shock", "brexit"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestStopwordListMatchesEnglishList(t *testing.T) {
	if len(stopwords) != 318 {
		t.Fatalf("expected 318 English stop words, got %d", len(stopwords))
	}
	for _, w := range []string{"amoungst", "couldnt", "hasnt", "thru", "yourselves", "un", "re"} {
		if !IsStopword(w) {
			t.Fatalf("expected %q to be a stop word", w)
		}
	}
	for _, w := range []string{"just", "does", "did", "doing", "fed"} {
		if IsStopword(w) {
			t.Fatalf("did not expect %q to be a stop word", w)
		}
	}
}

func TestTermsBuildsNgrams(t *testing.T) {
	got := Terms([]string{"oil", "prices", "fall"}, 2)
	want := []string{"oil", "prices", "fall", "oil prices", "prices fall"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("term %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestFitLimitsVocabularyByFrequency(t *testing.T) {
	v := NewVectorizer(2, 1)
	docs := []string{"oil oil gold", "oil gold", "zinc"}
	if err := v.Fit(docs); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(v.Vocabulary) != 2 || v.Vocabulary[0] != "gold" || v.Vocabulary[1] != "oil" {
		t.Fatalf("unexpected vocabulary %v", v.Vocabulary)
	}
	// gold appears in 2 of 3 docs
	want := math.Log(4.0/3.0) + 1
	if math.Abs(v.IDF[0]-want) > 1e-12 {
		t.Fatalf("expected idf %v, got %v", want, v.IDF[0])
	}
}

func TestTransformIsL2Normalised(t *testing.T) {
	v := NewVectorizer(0, 2)
	if err := v.Fit([]string{"markets rally strongly", "markets slump", "bonds rally"}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	vec, err := v.Transform("markets rally")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	var sq float64
	for _, x := range vec {
		sq += x * x
	}
	if math.Abs(sq-1) > 1e-9 {
		t.Fatalf("expected unit norm, got %v", sq)
	}
	zero, err := v.Transform("completely unseen words")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	for _, x := range zero {
		if x != 0 {
			t.Fatalf("expected zero vector for unknown terms, got %v", zero)
		}
	}
}

func TestFitRejectsStopwordOnlyCorpus(t *testing.T) {
	err := NewVectorizer(10, 1).Fit([]string{"the and of", "a"})
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity, got %v", err)
	}
}

func TestVectorizerJSONRestoresIndex(t *testing.T) {
	v := NewVectorizer(0, 1)
	if err := v.Fit([]string{"gold rises", "gold falls"}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	blob, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored Vectorizer
	if err := json.Unmarshal(blob, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	a, _ := v.Transform("gold rises")
	b, err := restored.Transform("gold rises")
	if err != nil {
		t.Fatalf("restored Transform: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("column %d differs after restore: %v vs %v", i, a[i], b[i])
		}
	}
}
