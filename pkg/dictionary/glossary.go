package dictionary

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/japaniel/lingomorph/pkg/db"
)

// maxGlosses caps how many glosses Definition joins.
const maxGlosses = 3

// Glossary is an in-memory index of JMdict entries by kanji and kana
// spelling. It is read-only after construction and safe for concurrent use.
type Glossary struct {
	index map[string][]Entry
}

// NewGlossary indexes entries.
func NewGlossary(entries []Entry) *Glossary {
	idx := make(map[string][]Entry)
	for _, e := range entries {
		for _, k := range e.Kanji {
			idx[k.Text] = append(idx[k.Text], e)
		}
		for _, k := range e.Kana {
			idx[k.Text] = append(idx[k.Text], e)
		}
	}
	return &Glossary{index: idx}
}

// LoadGlossary reads and indexes the file at path.
func LoadGlossary(path string) (*Glossary, error) {
	entries, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewGlossary(entries), nil
}

// Len returns the number of indexed spellings.
func (g *Glossary) Len() int { return len(g.index) }

// Lookup returns the entries spelled word or lemma. When reading is given
// (katakana or hiragana) only entries with that kana reading are kept.
func (g *Glossary) Lookup(word, lemma, reading string) []Entry {
	candidates := make(map[string]Entry)
	for _, term := range []string{word, lemma} {
		if term == "" {
			continue
		}
		for _, e := range g.index[term] {
			candidates[e.ID] = e
		}
	}

	var results []Entry
	for _, e := range candidates {
		if hasReading(e, reading) {
			results = append(results, e)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
	return results
}

func hasReading(e Entry, reading string) bool {
	if reading == "" {
		return true
	}
	want := ToHiragana(reading)
	for _, k := range e.Kana {
		if ToHiragana(k.Text) == want {
			return true
		}
	}
	return false
}

// Definition returns up to three English glosses of the best entry for
// word or lemma joined with "; ", or "" when nothing matches.
func (g *Glossary) Definition(word, lemma string) string {
	matches := g.Lookup(word, lemma, "")
	if len(matches) == 0 {
		return ""
	}
	var glosses []string
	for _, s := range matches[0].Sense {
		for _, gl := range s.Gloss {
			if gl.Lang != "" && gl.Lang != "eng" {
				continue
			}
			glosses = append(glosses, gl.Text)
			if len(glosses) == maxGlosses {
				return strings.Join(glosses, "; ")
			}
		}
	}
	return strings.Join(glosses, "; ")
}

// FillDefinitions sets the definition of every stored record that has none
// and a glossary match. It returns the number of records updated.
func (g *Glossary) FillDefinitions(conn db.DBExecutor, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	recs, err := db.AllVocab(conn)
	if err != nil {
		return 0, fmt.Errorf("list vocab: %w", err)
	}
	updated := 0
	for _, rec := range recs {
		if rec.Definition != "" {
			continue
		}
		def := g.Definition(rec.Word, rec.Lemma)
		if def == "" {
			continue
		}
		rec.Definition = def
		if err := db.UpsertVocab(conn, rec); err != nil {
			logger.Warn("fill definition failed", "note", rec.ID, "error", err)
			continue
		}
		updated++
	}
	return updated, nil
}

// ToHiragana converts Katakana to Hiragana.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}
