package oni

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 when either vector is empty, zero-magnitude, or the dimensions
// mismatch — mismatched vectors are never comparable.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}

// TokenOverlap scores two texts by normalized token-set overlap:
// |intersection| / sqrt(|A|*|B|). Used as the keyword fallback when one or
// both sides lack an embedding. Returns a value in [0, 1].
func TokenOverlap(a, b string) float32 {
	ta := Tokenize(a)
	tb := Tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var common int
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			common++
		}
	}
	if common == 0 {
		return 0
	}
	return float32(float64(common) / math.Sqrt(float64(len(ta))*float64(len(tb))))
}

// Tokenize lowercases text, strips non-alphanumeric runes, and splits on
// whitespace into a token set. Input is NFKC-normalized first so width and
// compatibility variants compare equal.
func Tokenize(text string) map[string]struct{} {
	text = norm.NFKC.String(text)
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(sb.String()) {
		tokens[tok] = struct{}{}
	}
	return tokens
}
