// Package fingerprint summarises the vocabulary store into a short learner
// profile that steers text adaptation.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/llm"
)

const (
	// NoDataFingerprint is returned when the store holds no active words.
	NoDataFingerprint = "Beginner (No vocabulary data available)"
	// ErrorFingerprint is returned when the profile could not be generated.
	ErrorFingerprint = "Error generating fingerprint. Assuming Intermediate level."
)

// Per-status caps on the words embedded in the prompt.
const (
	MaxLearning = 150
	MaxNew      = 150
	MaxReview   = 200
)

const prompt = `You are an expert linguist and language teacher.
Your goal is to create a "vocabulary fingerprint" for a language learner based on their known vocabulary.
This fingerprint will be used to adapt future texts to their level.

Input:
- Target Language: %s
- Native Language: %s
- Total Words Known: %d
- Vocabulary List (grouped by status):
%s

Instructions:
1. Analyze the provided vocabulary to estimate the user's proficiency level (CEFR A1-C2, or ACTFL).
2. Identify key semantic fields or topics where the user has strong vocabulary.
3. Identify gaps or areas where the user might struggle.
4. Synthesize this into a concise "fingerprint" or "learner profile" (max 100 words).
   - This profile should be descriptive enough for an LLM to adapt text effectively.
   - Example: "User is a high A2 learner. Strong in daily routine and travel vocabulary. Weak in abstract concepts and business terminology. Familiar with past tense but struggles with conditionals."

Output:
Return ONLY the fingerprint string. Do not include any introductory text or formatting like "Here is the fingerprint:".`

// Generator builds fingerprints from the vocabulary store.
type Generator struct {
	DB        db.DBExecutor
	Completer llm.Completer
	Logger    *slog.Logger
}

// Generate returns the learner profile for s. It never fails: an empty store
// yields NoDataFingerprint and any error yields ErrorFingerprint.
func (g *Generator) Generate(ctx context.Context, s config.Settings) string {
	fp, err := g.generate(ctx, s)
	if err != nil {
		g.logger().Error("failed to generate vocabulary fingerprint", "error", err)
		return ErrorFingerprint
	}
	return fp
}

func (g *Generator) generate(ctx context.Context, s config.Settings) (string, error) {
	if g.DB == nil {
		return "", errors.New("fingerprint: no store")
	}
	all, err := db.AllVocab(g.DB)
	if err != nil {
		return "", err
	}
	active := make([]db.VocabRecord, 0, len(all))
	for _, r := range all {
		if r.Status.IsActive() {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return NoDataFingerprint, nil
	}
	if g.Completer == nil {
		return "", errors.New("fingerprint: no completer")
	}

	resp, err := g.Completer.Complete(ctx, llm.Request{Prompt: BuildPrompt(s, active)})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// BuildPrompt renders the fingerprint prompt for the active records.
func BuildPrompt(s config.Settings, active []db.VocabRecord) string {
	learning, fresh, review := Buckets(active)
	list := fmt.Sprintf("Learning: %s\nNew: %s\nReview: %s",
		strings.Join(learning, ", "),
		strings.Join(fresh, ", "),
		strings.Join(review, ", "))
	return fmt.Sprintf(prompt, s.TargetLanguage, s.NativeLanguage, len(active), list)
}

// Buckets splits records into capped lemma lists per status, most recently
// synced first. Ties fall back to the higher note id (notes created later),
// then to the lemma in descending order. A lemma appears once per bucket.
func Buckets(records []db.VocabRecord) (learning, fresh, review []string) {
	sorted := append([]db.VocabRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.LastSynced.Equal(b.LastSynced) {
			return a.LastSynced.After(b.LastSynced)
		}
		if a.ID != b.ID {
			return a.ID > b.ID
		}
		return a.Lemma > b.Lemma
	})

	seen := map[db.Status]map[string]bool{
		db.StatusLearning: {},
		db.StatusNew:      {},
		db.StatusReview:   {},
	}
	for _, r := range sorted {
		if seen[r.Status] == nil || seen[r.Status][r.Lemma] {
			continue
		}
		seen[r.Status][r.Lemma] = true
		switch r.Status {
		case db.StatusLearning:
			if len(learning) < MaxLearning {
				learning = append(learning, r.Lemma)
			}
		case db.StatusNew:
			if len(fresh) < MaxNew {
				fresh = append(fresh, r.Lemma)
			}
		case db.StatusReview:
			if len(review) < MaxReview {
				review = append(review, r.Lemma)
			}
		}
	}
	return learning, fresh, review
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
