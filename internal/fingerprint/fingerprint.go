// Package fingerprint computes fixed-size hashed term vectors for
// near-duplicate detection and compares them by cosine similarity.
package fingerprint

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Dim is the vector dimension. The postgres schema declares vector(64).
const Dim = 64

// NearDuplicateThreshold is the cosine similarity at or above which two
// items are treated as the same content.
const NearDuplicateThreshold = 0.95

var folder = cases.Fold()

// Compute returns the L2-normalized hashed term-frequency vector of text.
// Latin-script words are hashed whole; Han characters are hashed as bigrams
// since they are not space separated. Returns nil when text has no terms.
func Compute(text string) []float32 {
	terms := Terms(text)
	if len(terms) == 0 {
		return nil
	}

	vec := make([]float64, Dim)
	for _, term := range terms {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum32()
		// The top bit picks the sign so collisions tend to cancel.
		sign := 1.0
		if sum&(1<<31) != 0 {
			sign = -1.0
		}
		vec[sum%Dim] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)

	out := make([]float32, Dim)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// Terms splits text into case-folded terms.
func Terms(text string) []string {
	text = folder.String(text)
	var terms []string
	var word strings.Builder
	var prevHan rune

	flush := func() {
		if word.Len() > 1 {
			terms = append(terms, word.String())
		}
		word.Reset()
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			if prevHan != 0 {
				terms = append(terms, string([]rune{prevHan, r}))
			} else {
				terms = append(terms, string(r))
			}
			prevHan = r
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
		prevHan = 0
	}
	flush()
	return terms
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty
// or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
