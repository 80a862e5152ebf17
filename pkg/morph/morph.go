// Package morph wraps the kagome morphological analyzer used to reduce
// Japanese vocabulary to dictionary form.
package morph

import (
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// IPA part-of-speech labels used by Lemma.
const (
	posVerb      = "動詞"
	posAdjective = "形容詞"
	posAuxVerb   = "助動詞"
	posParticle  = "助詞"
	posNoun      = "名詞"
	subDependent = "非自立"
	subSuffix    = "接尾"
	subSuru      = "サ変接続"
)

// Token represents a single analyzed unit of text.
type Token struct {
	Surface  string // The text as it appears (e.g. "行っ")
	BaseForm string // The dictionary form (e.g. "行く")
	Reading  string // katakana, e.g. "イッ"
	// POS holds the part-of-speech hierarchy, e.g. ["動詞", "自立", "*", "*"].
	POS []string
}

// Primary returns the top-level part of speech.
func (t Token) Primary() string {
	if len(t.POS) == 0 {
		return ""
	}
	return t.POS[0]
}

func (t Token) sub() string {
	if len(t.POS) < 2 {
		return ""
	}
	return t.POS[1]
}

// Analyzer handles text segmentation.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

// NewAnalyzer creates a new tokenizer instance with the IPA dictionary.
func NewAnalyzer() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Analyzer{t: t}, nil
}

// Analyze breaks text into tokens with readings and base forms.
// Whitespace-only tokens are dropped.
func (a *Analyzer) Analyze(text string) []Token {
	var result []Token
	for _, tok := range a.t.Tokenize(text) {
		if tok.Class == tokenizer.DUMMY || strings.TrimSpace(tok.Surface) == "" {
			continue
		}
		// IPA features: 0-3 POS, 4 conjugation type, 5 conjugation form,
		// 6 base form, 7 reading, 8 pronunciation.
		features := tok.Features()
		base := tok.Surface
		if len(features) > 6 && features[6] != "*" {
			base = features[6]
		}
		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}
		pos := features
		if len(pos) > 4 {
			pos = pos[:4]
		}
		result = append(result, Token{
			Surface:  tok.Surface,
			BaseForm: base,
			Reading:  reading,
			POS:      pos,
		})
	}
	return result
}

// Lemma reduces a single inflected predicate to its dictionary form:
// 食べました becomes 食べる, 高かった becomes 高い and 勉強した becomes
// 勉強する. Anything that is not one predicate followed only by auxiliaries
// and particles is returned unchanged.
func (a *Analyzer) Lemma(word string) string {
	toks := a.Analyze(word)
	if len(toks) == 0 {
		return word
	}

	head := toks[0]
	rest := toks[1:]
	var lemma string
	switch {
	case head.Primary() == posVerb || head.Primary() == posAdjective:
		lemma = head.BaseForm
	case head.Primary() == posNoun && head.sub() == subSuru && len(rest) > 0 &&
		rest[0].Primary() == posVerb && rest[0].BaseForm == "する":
		lemma = head.Surface + "する"
		rest = rest[1:]
	default:
		return word
	}

	for _, t := range rest {
		if !isTrailing(t) {
			return word
		}
	}
	return lemma
}

// isTrailing reports whether t may follow the head of an inflected predicate
// without changing which word it is. Passive and causative suffixes,
// progressive いる/ある, negative ない and nominalising の/ん qualify. Noun
// suffixes (美しさ) and other dependent verbs (持って行く) make a new word.
func isTrailing(t Token) bool {
	switch t.Primary() {
	case posAuxVerb, posParticle:
		return true
	case posVerb:
		switch t.sub() {
		case subSuffix:
			return true
		case subDependent:
			return aspectVerbs[t.BaseForm]
		}
	case posAdjective:
		return t.BaseForm == "ない"
	case posNoun:
		return t.sub() == subDependent && (t.BaseForm == "の" || t.BaseForm == "ん")
	}
	return false
}

var aspectVerbs = map[string]bool{"いる": true, "ある": true, "おる": true, "しまう": true}
