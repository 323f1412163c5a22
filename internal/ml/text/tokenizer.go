package text

import (
	_ "embed"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

//go:embed stopwords_en.txt
var stopwordsEN string

var (
	wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	stopwords   = loadStopwords(stopwordsEN)
)

func loadStopwords(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		w := strings.TrimSpace(line)
		if w == "" {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// IsStopword reports whether w is on the English stop-word list.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Tokenize NFKC-normalises and lower-cases doc, then returns the runs of at
// least two word characters that are not stop words.
func Tokenize(doc string) []string {
	lower := cases.Lower(language.Und).String(norm.NFKC.String(doc))
	raw := wordPattern.FindAllString(lower, -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if utf8.RuneCountInString(tok) < 2 || IsStopword(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Terms expands tokens into all n-grams of length 1..maxN, joined by a space.
func Terms(tokens []string, maxN int) []string {
	if maxN < 1 {
		maxN = 1
	}
	out := make([]string, 0, len(tokens)*maxN)
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
