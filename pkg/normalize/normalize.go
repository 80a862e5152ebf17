// Package normalize reduces flashcard words to the lemma used as the lookup
// key in the vocabulary store.
//
// Normalize applies fast per-language heuristics. BatchNormalizer asks a
// language model to resolve what the heuristics cannot.
package normalize

import (
	"regexp"
	"strings"
	"sync"

	"github.com/japaniel/lingomorph/pkg/morph"
)

// Strategy maps a word to its lemma. Every strategy must be idempotent:
// applying it to its own output returns the same string.
type Strategy func(word string) string

// Strategies holds the heuristics per lower-cased language name. Languages
// not listed here are only trimmed.
var Strategies = map[string]Strategy{
	"korean":   Korean,
	"spanish":  Spanish,
	"japanese": Japanese,
}

// Normalize returns the heuristic lemma of word in language. It never fails
// and is deterministic.
func Normalize(word, language string) string {
	if s, ok := Strategies[strings.ToLower(strings.TrimSpace(language))]; ok {
		return s(word)
	}
	return strings.TrimSpace(word)
}

var (
	reSpaceAfterParen = regexp.MustCompile(`\)\s+`)
	reParenthetical   = regexp.MustCompile(`\([^)]*\)`)
	reJapaneseReading = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)
)

// Korean drops grammar markers such as (을/를) or (하다): "공부(하다)" becomes
// "공부", and "(을/를) 보다" becomes "보다".
func Korean(word string) string {
	s := reSpaceAfterParen.ReplaceAllString(word, ")")
	s = reParenthetical.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Spanish trims and lower-cases.
func Spanish(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

var analyzer = sync.OnceValues(morph.NewAnalyzer)

// Japanese removes parenthesised readings (食べる（たべる）) and reduces a
// single inflected predicate to its dictionary form.
func Japanese(word string) string {
	s := strings.TrimSpace(reJapaneseReading.ReplaceAllString(word, ""))
	if s == "" {
		return s
	}
	a, err := analyzer()
	if err != nil {
		return s
	}
	return a.Lemma(s)
}
