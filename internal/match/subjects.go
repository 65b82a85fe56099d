// Package match provides deterministic fuzzy matching of subject names. It is
// intentionally small and dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization (Cyrillic subject names are the common case)
//   - Deterministic scoring and tie-breaking (stable results across runs)
//
// Scoring uses Jaccard similarity between the two token sets:
// score = |A ∩ B| / |A ∪ B|. "Русский язык" and "русский" match; "Алгебра"
// and "Геометрия" do not.
package match

import (
	"strings"
	"unicode"
)

// DefaultThreshold is the minimum similarity BestSubject accepts.
const DefaultThreshold = 0.5

// tokenize lowercases s and splits it on anything that is not a letter or a
// digit, dropping empty tokens.
func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// Similarity returns the Jaccard similarity of the token sets of a and b,
// in [0, 1]. Two empty strings score 0.
func Similarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// BestSubject returns the candidate most similar to subject, provided the
// similarity reaches threshold (non-positive selects DefaultThreshold).
// Ties resolve to the earliest candidate, so callers get stable results for
// a stable candidate order.
func BestSubject(subject string, candidates []string, threshold float64) (string, bool) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		if score := Similarity(subject, c); score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < threshold {
		return "", false
	}
	return best, true
}
