// Package dictionary loads a JMdict (jmdict-simplified) glossary and uses it
// to fill in missing definitions of Japanese vocabulary.
package dictionary

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Entry matches the structure of jmdict-simplified entries.
type Entry struct {
	ID    string    `json:"id"`
	Kanji []Element `json:"kanji"`
	Kana  []Element `json:"kana"`
	Sense []Sense   `json:"sense"`
}

type Element struct {
	Text   string   `json:"text"`
	Common bool     `json:"common"`
	Tags   []string `json:"tags"`
}

type Sense struct {
	PartOfSpeech []string `json:"partOfSpeech"`
	Gloss        []Gloss  `json:"gloss"`
}

type Gloss struct {
	Text string `json:"text"`
	Lang string `json:"lang"` // defaults to 'eng' if missing
}

// Load reads a jmdict-simplified file. Both the release layout
// {"words": [...]} and a bare array are accepted.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var wrapped struct {
		Words []Entry `json:"words"`
	}
	if err := json.NewDecoder(f).Decode(&wrapped); err == nil && len(wrapped.Words) > 0 {
		return wrapped.Words, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse dictionary %s as object or array: %w", path, err)
	}
	return entries, nil
}
