// Package langdetect provides a minimal English-vs-other-language
// heuristic, used by the ingestion pipeline's language-filter step. It is
// a stopword-overlap heuristic over the standard library rather than an
// n-gram language model; see DESIGN.md for the trade-off.
package langdetect

import (
	"strings"
	"unicode"
)

// Detector classifies a text sample as English or not.
type Detector interface {
	IsEnglish(sample string) bool
}

// Heuristic is a stdlib-only Detector: a sample is classified English when
// the fraction of its tokens found in a common-English-function-word list
// meets MinStopwordRatio. This is deliberately crude compared to a real
// n-gram language model, but it is deterministic, has no external calls or
// model weights to ship, and correctly rejects the bulk of non-English text
// a creator-profile corpus actually contains (CJK/Cyrillic/Arabic scripts
// carry none of these tokens at all; Romance-language bios share very few).
type Heuristic struct {
	MinStopwordRatio float64
}

// NewHeuristic returns a Heuristic with the default threshold tuned against
// short social-media bios and captions (favoring recall: ambiguous or very
// short samples lean English rather than being discarded).
func NewHeuristic() *Heuristic {
	return &Heuristic{MinStopwordRatio: 0.12}
}

func (h *Heuristic) IsEnglish(sample string) bool {
	tokens := tokenize(sample)
	if len(tokens) == 0 {
		return true
	}
	hits := 0
	for _, t := range tokens {
		if _, ok := englishStopwords[t]; ok {
			hits++
		}
	}
	ratio := h.MinStopwordRatio
	if ratio <= 0 {
		ratio = 0.12
	}
	return float64(hits)/float64(len(tokens)) >= ratio
}

func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case cur.Len() > 0:
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

var englishStopwords = toSet([]string{
	"the", "a", "an", "and", "or", "but", "if", "is", "are", "was", "were", "be",
	"been", "being", "to", "of", "in", "on", "at", "for", "with", "about",
	"against", "between", "into", "through", "during", "before", "after",
	"above", "below", "from", "up", "down", "out", "off", "over", "under",
	"again", "further", "then", "once", "here", "there", "when", "where",
	"why", "how", "all", "any", "both", "each", "few", "more", "most", "other",
	"some", "such", "no", "nor", "not", "only", "own", "same", "so", "than",
	"too", "very", "can", "will", "just", "don", "should", "now", "i", "you",
	"he", "she", "it", "we", "they", "them", "their", "this", "that", "these",
	"those", "my", "your", "his", "her", "its", "our", "what", "which", "who",
	"whom", "as", "do", "does", "did", "have", "has", "had", "having", "im",
	"ive", "dont", "youre", "thats", "love", "life", "like", "thanks", "follow",
	"new", "based", "lover", "world", "official", "creator", "content",
})

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
