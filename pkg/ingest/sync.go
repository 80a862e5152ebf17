// Package ingest pulls vocabulary notes out of the flashcard tool and writes
// them to the vocabulary store.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/japaniel/lingomorph/pkg/anki"
	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/normalize"
	"github.com/japaniel/lingomorph/pkg/observe"
)

// Source is the subset of AnkiConnect a sync reads from. *anki.Client
// satisfies it.
type Source interface {
	DeckNames(ctx context.Context) ([]string, error)
	FindNotes(ctx context.Context, query string) ([]int64, error)
	NotesInfo(ctx context.Context, ids []int64) ([]anki.Note, error)
	CardsInfo(ctx context.Context, ids []int64) ([]anki.Card, error)
}

// Normalizer resolves lemmas for a batch of words.
type Normalizer interface {
	NormalizeBatch(ctx context.Context, words []string) (map[string]string, error)
}

// FingerprintGenerator builds a learner profile from the store. It never
// fails; errors are reported through a sentinel profile.
type FingerprintGenerator interface {
	Generate(ctx context.Context, s config.Settings) string
}

// FingerprintSaver persists a freshly generated fingerprint.
type FingerprintSaver interface {
	SaveFingerprint(fp string) error
}

// Glossary supplies a definition for notes that carry none.
type Glossary interface {
	Definition(word, lemma string) string
}

// Progress stages.
const (
	StageDecks       = "decks"
	StageNotes       = "notes"
	StageNormalize   = "normalize"
	StageAI          = "ai"
	StageSave        = "save"
	StageFingerprint = "fingerprint"
	StageDone        = "done"
)

// Event is one progress report. Current and Total are set for stages that
// advance in steps.
type Event struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// Result summarises a sync. Errors holds non-fatal warnings and is never nil.
type Result struct {
	Added       int      `json:"added"`
	Total       int      `json:"total"`
	Errors      []string `json:"errors"`
	Deck        string   `json:"deck,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// Syncer runs the vocabulary sync pipeline. Steps run strictly in order with
// at most one outstanding external call.
type Syncer struct {
	DB       *sql.DB
	Source   Source
	Settings config.Settings

	// Normalizer is used when Settings.EnableAINormalization is set.
	Normalizer Normalizer
	// Fingerprints and SettingsStore are optional. Without them the
	// fingerprint is not regenerated.
	Fingerprints  FingerprintGenerator
	SettingsStore FingerprintSaver
	// Glossary is optional.
	Glossary Glossary

	// BatchSize is both the AI batch size and the store transaction size.
	BatchSize int

	// OnProgress is called from the sync goroutine. nil means no reporting.
	OnProgress func(Event)

	Logger  *slog.Logger
	Metrics *observe.Metrics
	// Now stamps LastSynced. nil means time.Now.
	Now func() time.Time
}

// NewSyncer creates a Syncer with default batch size.
func NewSyncer(conn *sql.DB, src Source, s config.Settings) *Syncer {
	return &Syncer{
		DB:        conn,
		Source:    src,
		Settings:  s,
		BatchSize: 50,
	}
}

// SelectDeck returns the first deck whose name contains language, compared
// case-insensitively.
func SelectDeck(decks []string, language string) (string, bool) {
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" {
		return "", false
	}
	for _, d := range decks {
		if strings.Contains(strings.ToLower(d), lang) {
			return d, true
		}
	}
	return "", false
}

// Sync reads the target-language deck, normalizes every note and upserts the
// result. A missing deck or an empty deck is a zero result, not an error.
// AnkiConnect and store failures abort the sync.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	res := Result{Errors: []string{}}
	if s.DB == nil || s.Source == nil {
		return res, errors.New("sync: store and source are required")
	}
	log := s.logger()

	s.progress(Event{Stage: StageDecks, Message: "Fetching decks..."})
	decks, err := s.Source.DeckNames(ctx)
	if err != nil {
		return res, fmt.Errorf("sync: list decks: %w", err)
	}
	deck, ok := SelectDeck(decks, s.Settings.TargetLanguage)
	if !ok {
		log.Warn("no deck found for target language", "language", s.Settings.TargetLanguage, "decks", len(decks))
		return res, nil
	}
	res.Deck = deck

	s.progress(Event{Stage: StageNotes, Message: fmt.Sprintf("Found deck: %s. Fetching notes...", deck)})
	ids, err := s.Source.FindNotes(ctx, `deck:"`+deck+`"`)
	if err != nil {
		return res, fmt.Errorf("sync: find notes in %q: %w", deck, err)
	}
	if len(ids) == 0 {
		log.Info("deck has no notes", "deck", deck)
		return res, nil
	}

	s.progress(Event{Stage: StageNotes, Message: fmt.Sprintf("Fetching details for %d notes...", len(ids)), Total: len(ids)})
	notes, err := s.Source.NotesInfo(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("sync: notes info: %w", err)
	}
	queues, err := s.cardQueues(ctx, notes)
	if err != nil {
		return res, err
	}

	s.progress(Event{Stage: StageNormalize, Message: "Applying heuristic normalization..."})
	now := s.now()
	records := make([]db.VocabRecord, 0, len(notes))
	for _, n := range notes {
		word, def := extractFields(n)
		if word == "" {
			log.Warn("skipping note without a word", "note", n.NoteID)
			continue
		}
		lemma := normalize.Normalize(word, s.Settings.TargetLanguage)
		if lemma == "" {
			lemma = word
		}
		records = append(records, db.VocabRecord{
			ID:         n.NoteID,
			Word:       word,
			Lemma:      lemma,
			Status:     statusFromQueues(queues[n.NoteID]),
			Definition: def,
			LastSynced: now,
		})
	}

	if s.Settings.EnableAINormalization && s.Normalizer != nil {
		if err := s.normalizeAI(ctx, records, &res); err != nil {
			return res, err
		}
	} else {
		s.progress(Event{Stage: StageAI, Message: "Skipping AI normalization (disabled in settings)."})
	}

	if s.Glossary != nil {
		for i := range records {
			if records[i].Definition == "" {
				records[i].Definition = s.Glossary.Definition(records[i].Word, records[i].Lemma)
			}
		}
	}

	s.progress(Event{Stage: StageSave, Message: "Saving to database...", Total: len(records)})
	if err := s.save(records); err != nil {
		return res, err
	}
	if err := db.SaveSyncStats(s.DB, db.SyncStats{
		LastSynced: now,
		Decks:      []string{deck},
		TotalWords: len(records),
	}); err != nil {
		return res, fmt.Errorf("sync: %w", err)
	}
	if s.Metrics != nil {
		s.Metrics.SyncRecords.Add(ctx, int64(len(records)))
	}
	res.Added = len(records)
	res.Total = len(records)

	if s.Fingerprints != nil {
		s.progress(Event{Stage: StageFingerprint, Message: "Regenerating vocabulary fingerprint..."})
		res.Fingerprint = s.Fingerprints.Generate(ctx, s.Settings)
		if s.SettingsStore != nil {
			if err := s.SettingsStore.SaveFingerprint(res.Fingerprint); err != nil {
				log.Warn("failed to save fingerprint", "error", err)
				res.Errors = append(res.Errors, fmt.Sprintf("save fingerprint: %v", err))
			}
		}
	}

	log.Info("sync complete", "deck", deck, "notes", len(records), "warnings", len(res.Errors))
	s.progress(Event{Stage: StageDone, Message: fmt.Sprintf("Synced %d words from %s.", len(records), deck)})
	return res, nil
}

// cardQueues fetches every card of notes in one call and collects each note's
// queue values through the card ids the note lists.
func (s *Syncer) cardQueues(ctx context.Context, notes []anki.Note) (map[int64][]int, error) {
	var cardIDs []int64
	for _, n := range notes {
		cardIDs = append(cardIDs, n.Cards...)
	}
	cards, err := s.Source.CardsInfo(ctx, cardIDs)
	if err != nil {
		return nil, fmt.Errorf("sync: cards info: %w", err)
	}
	queueByCard := make(map[int64]int, len(cards))
	for _, c := range cards {
		queueByCard[c.CardID] = c.Queue
	}
	out := make(map[int64][]int, len(notes))
	for _, n := range notes {
		for _, id := range n.Cards {
			if q, ok := queueByCard[id]; ok {
				out[n.NoteID] = append(out[n.NoteID], q)
			}
		}
	}
	return out, nil
}

// normalizeAI replaces heuristic lemmas with model lemmas batch by batch. A
// failed batch keeps its heuristic lemmas and is recorded in res.Errors. A
// configuration error aborts the sync since every batch would fail the same way.
func (s *Syncer) normalizeAI(ctx context.Context, records []db.VocabRecord, res *Result) error {
	size := s.batchSize()
	total := (len(records) + size - 1) / size
	s.progress(Event{Stage: StageAI, Message: fmt.Sprintf("Normalizing %d words with AI...", len(records)), Total: total})

	for i := 0; i < total; i++ {
		start := i * size
		end := min(start+size, len(records))
		batch := records[start:end]
		words := make([]string, len(batch))
		for j, r := range batch {
			words[j] = r.Word
		}

		s.progress(Event{
			Stage:   StageAI,
			Message: fmt.Sprintf("AI normalizing batch %d/%d...", i+1, total),
			Current: i + 1,
			Total:   total,
		})
		mapping, err := s.Normalizer.NormalizeBatch(ctx, words)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("sync: %w", ctxErr)
			}
			if errors.Is(err, config.ErrConfig) {
				return fmt.Errorf("sync: AI normalization: %w", err)
			}
			msg := fmt.Sprintf("batch %d/%d failed: %v", i+1, total, err)
			res.Errors = append(res.Errors, msg)
			s.logger().Warn("AI normalization batch failed", "batch", i+1, "batches", total, "error", err)
			if s.Metrics != nil {
				s.Metrics.BatchFailures.Add(ctx, 1)
			}
			s.progress(Event{
				Stage:   StageAI,
				Message: fmt.Sprintf("Warning: %s. Falling back to heuristic normalization.", msg),
				Current: i + 1,
				Total:   total,
			})
			continue
		}
		for j := range batch {
			if lemma := strings.TrimSpace(mapping[batch[j].Word]); lemma != "" {
				batch[j].Lemma = strings.ToLower(lemma)
			}
		}
	}
	return nil
}

// save upserts records in transactions of BatchSize. Committed chunks are
// visible to readers while later chunks are still pending.
func (s *Syncer) save(records []db.VocabRecord) error {
	bw := NewBatchWriter(s.DB, s.batchSize())
	bw.OnCommit = func(n int) {
		s.logger().Debug("committed vocabulary chunk", "records", n)
	}
	for _, rec := range records {
		rec := rec
		if err := bw.Submit(func(_ context.Context, tx *sql.Tx) error {
			return db.UpsertVocab(tx, rec)
		}); err != nil {
			_ = bw.Close()
			return fmt.Errorf("sync: queue upsert: %w", err)
		}
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("sync: save vocabulary: %w", err)
	}
	return nil
}

func (s *Syncer) batchSize() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return 50
}

func (s *Syncer) progress(e Event) {
	if s.OnProgress != nil {
		s.OnProgress(e)
	}
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
