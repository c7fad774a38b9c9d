// Package textnorm provides deterministic text cleanup, business-category
// detection and specificity heuristics used by the scorer and the embedding
// cache key derivation.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxEmbeddingRunes truncates pathological inputs before they reach a backend.
const maxEmbeddingRunes = 8000

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize produces the aggressive matching form: control characters removed,
// whitespace collapsed, lower-cased, diacritics stripped.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	out := strings.TrimRight(b.String(), " ")
	if stripped, _, err := transform.String(stripMarks, out); err == nil {
		out = stripped
	}
	return out
}

// NormalizeForEmbedding is the lighter-touch form sent to embedding backends
// and hashed for cache keys: trim, strip NUL bytes, truncate. Case and accents
// are preserved so the model sees the original wording.
func NormalizeForEmbedding(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
	if r := []rune(text); len(r) > maxEmbeddingRunes {
		return string(r[:maxEmbeddingRunes])
	}
	return text
}
