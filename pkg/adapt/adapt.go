// Package adapt rewrites text to the learner's level and tags every token of
// the result against the vocabulary store.
package adapt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/fingerprint"
	"github.com/japaniel/lingomorph/pkg/llm"
	"github.com/japaniel/lingomorph/pkg/observe"
)

var (
	// ErrEmptyText is returned when there is nothing to adapt.
	ErrEmptyText = errors.New("adapt: empty text")
	// ErrAnalysis wraps every failure to parse the token analysis.
	ErrAnalysis = errors.New("analysis error")
)

const (
	defaultLevel  = "A1"
	previewLength = 200
)

// Service runs adaptations. DB and Completer are required.
type Service struct {
	DB        db.DBExecutor
	Completer llm.Completer
	Settings  config.Settings

	// Anki is only needed by AddToVocabulary.
	Anki NoteAdder

	Logger  *slog.Logger
	Metrics *observe.Metrics

	// NewID and Now default to uuid.NewString and time.Now.
	NewID func() string
	Now   func() time.Time
}

type analysisItem struct {
	Token       string `json:"token"`
	Lemma       string `json:"lemma"`
	Translation string `json:"translation"`
	Level       string `json:"level"`
}

// Adapt rewrites text for the configured learner and analyses the result.
// Either completion failing aborts the run; nothing is retried. The returned
// entry is not saved.
func (s *Service) Adapt(ctx context.Context, text string) (res *db.AdaptedText, err error) {
	if s.Metrics != nil {
		defer func() { s.Metrics.RecordAdaptation(ctx, err) }()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	log := s.logger()

	profile := strings.TrimSpace(s.Settings.Fingerprint)
	if profile == "" {
		profile = fingerprint.NoDataFingerprint
	}

	log.Debug("adapting text", "chars", utf8.RuneCountInString(text))
	resp, err := s.Completer.Complete(ctx, llm.Request{
		Prompt: fmt.Sprintf(adaptationPrompt, s.Settings.TargetLanguage, s.Settings.NativeLanguage, profile, NewWordRatio, text),
	})
	if err != nil {
		return nil, fmt.Errorf("adapt: rewrite: %w", err)
	}
	adapted := llm.StripCodeFence(strings.TrimSpace(resp.Text))
	if adapted == "" {
		return nil, fmt.Errorf("adapt: rewrite: %w", llm.ErrEmptyResponse)
	}

	log.Debug("analysing adapted text", "chars", utf8.RuneCountInString(adapted))
	resp, err = s.Completer.Complete(ctx, llm.Request{
		Prompt: fmt.Sprintf(analysisPrompt, s.Settings.TargetLanguage, s.Settings.NativeLanguage, adapted),
	})
	if err != nil {
		return nil, fmt.Errorf("adapt: analysis: %w", err)
	}
	items, err := parseAnalysis(resp.Text)
	if err != nil {
		return nil, err
	}

	words, err := s.tag(items)
	if err != nil {
		return nil, err
	}

	return &db.AdaptedText{
		ID:          s.newID(),
		Original:    text,
		Adapted:     adapted,
		Words:       words,
		ChatHistory: []db.Message{},
		CreatedAt:   s.now(),
	}, nil
}

// parseAnalysis decodes the token array. Items that are not objects are
// dropped; the caller drops items without a token.
func parseAnalysis(raw string) ([]analysisItem, error) {
	clean := llm.StripCodeFence(strings.TrimSpace(raw))
	if clean == "" {
		return nil, analysisError("empty response from analysis step", raw)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(clean), &elems); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return nil, analysisError(err.Error(), raw)
		}
		return nil, analysisError("analysis output is not an array", raw)
	}
	if elems == nil {
		return nil, analysisError("analysis output is not an array", raw)
	}
	items := make([]analysisItem, 0, len(elems))
	for _, e := range elems {
		var it analysisItem
		if err := json.Unmarshal(e, &it); err != nil {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func analysisError(reason, raw string) error {
	preview := raw
	if utf8.RuneCountInString(raw) > previewLength {
		preview = string([]rune(raw)[:previewLength]) + "..."
	}
	return fmt.Errorf("%w: %s. raw: %q", ErrAnalysis, reason, preview)
}

// tag resolves each item's lemma and looks up its status in the store.
func (s *Service) tag(items []analysisItem) ([]db.AnalyzedWord, error) {
	words := make([]db.AnalyzedWord, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Token) == "" {
			continue
		}
		lemma := strings.ToLower(strings.TrimSpace(it.Lemma))
		if lemma == "" {
			lemma = strings.ToLower(strings.TrimSpace(it.Token))
		}
		level := strings.TrimSpace(it.Level)
		if level == "" {
			level = defaultLevel
		}
		w := db.AnalyzedWord{
			Text:       it.Token,
			Lemma:      lemma,
			Definition: it.Translation,
			Level:      level,
			Status:     db.StatusUntracked,
		}
		rec, err := db.GetVocabByLemma(s.DB, lemma)
		switch {
		case err == nil:
			w.Status = rec.Status
			w.NoteID = rec.ID
		case !errors.Is(err, db.ErrNotFound):
			return nil, fmt.Errorf("adapt: %w", err)
		}
		words = append(words, w)
	}
	return words, nil
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
