package adapt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/japaniel/lingomorph/pkg/anki"
	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/ingest"
)

// ErrNoDeck is returned when the flashcard tool has no deck to add to.
var ErrNoDeck = errors.New("adapt: no deck found")

// Tag marks notes created from an adaptation.
const Tag = "lingomorph"

// NoteAdder is the subset of AnkiConnect used for manual adds.
// *anki.Client satisfies it.
type NoteAdder interface {
	DeckNames(ctx context.Context) ([]string, error)
	AddNote(ctx context.Context, n anki.NewNote) (int64, error)
}

// Added describes a manual add.
type Added struct {
	NoteID int64  `json:"noteId"`
	Deck   string `json:"deck"`
	// Patched counts the history entries whose words were updated.
	Patched int `json:"patched"`
}

// AddToVocabulary creates a flashcard for lemma in the target-language deck,
// falling back to the first deck, and records it locally as a new word so
// history reflects it without a sync. The card keeps the lemma as given, the
// local record and history use its lower-case form. Local failures after the
// note was created are logged and do not fail the add.
func (s *Service) AddToVocabulary(ctx context.Context, lemma, definition string) (Added, error) {
	front := strings.TrimSpace(lemma)
	lemma = strings.ToLower(front)
	if lemma == "" {
		return Added{}, errors.New("adapt: empty lemma")
	}
	if s.Anki == nil {
		return Added{}, errors.New("adapt: no flashcard client configured")
	}
	log := s.logger()

	decks, err := s.Anki.DeckNames(ctx)
	if err != nil {
		return Added{}, fmt.Errorf("adapt: list decks: %w", err)
	}
	deck, ok := ingest.SelectDeck(decks, s.Settings.TargetLanguage)
	if !ok {
		if len(decks) == 0 {
			return Added{}, ErrNoDeck
		}
		deck = decks[0]
	}

	noteType := orDefault(s.Settings.AnkiNoteType, "Basic")
	frontField := orDefault(s.Settings.AnkiFrontField, "Front")
	backField := orDefault(s.Settings.AnkiBackField, "Back")

	id, err := s.Anki.AddNote(ctx, anki.NewNote{
		DeckName:  deck,
		ModelName: noteType,
		Fields:    map[string]string{frontField: front, backField: definition},
		Tags:      []string{Tag},
	})
	if err != nil {
		return Added{}, fmt.Errorf("adapt: add note: %w", err)
	}
	out := Added{NoteID: id, Deck: deck}

	if err := db.UpsertVocab(s.DB, db.VocabRecord{
		ID:         id,
		Word:       lemma,
		Lemma:      lemma,
		Status:     db.StatusNew,
		Definition: definition,
		LastSynced: s.now(),
	}); err != nil {
		log.Error("failed to save added word locally", "lemma", lemma, "note", id, "error", err)
	}
	n, err := db.PatchWord(s.DB, lemma, id, definition)
	if err != nil {
		log.Error("failed to update history for added word", "lemma", lemma, "note", id, "error", err)
	}
	out.Patched = n

	log.Info("added word to deck", "lemma", lemma, "deck", deck, "note", id)
	return out, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
