package adapt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lingomorph/pkg/anki"
	"github.com/japaniel/lingomorph/pkg/anki/ankitest"
	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/llm/mock"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newService(t *testing.T, responses ...string) (*Service, *mock.Completer, *sql.DB) {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &mock.Completer{Responses: responses}
	n := 0
	return &Service{
		DB:        conn,
		Completer: c,
		Settings:  config.Default(),
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
		Now: func() time.Time { return fixedNow },
	}, c, conn
}

func TestAdaptEndToEndUntracked(t *testing.T) {
	analysis := "```json\n" + `[
		{"token": "Caminé", "lemma": "caminar", "translation": "I walked", "level": "A2"},
		{"token": "al", "lemma": "al", "translation": "to the"},
		{"token": "mercado", "lemma": "Mercado", "translation": "market", "level": "A1"},
		{"token": ".", "lemma": ".", "translation": "."}
	]` + "\n```"
	svc, c, _ := newService(t, "```text\nCaminé al mercado.\n```", analysis)

	got, err := svc.Adapt(context.Background(), "I walked to the market.")
	require.NoError(t, err)

	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, "I walked to the market.", got.Original)
	assert.Equal(t, "Caminé al mercado.", got.Adapted)
	assert.Equal(t, fixedNow, got.CreatedAt)
	assert.NotNil(t, got.ChatHistory)
	require.Len(t, got.Words, 4)
	for _, w := range got.Words {
		assert.Equal(t, db.StatusUntracked, w.Status, w.Text)
	}
	assert.Equal(t, "mercado", got.Words[2].Lemma)
	assert.Equal(t, "A1", got.Words[1].Level)
	assert.Equal(t, "I walked", got.Words[0].Definition)

	reqs := c.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Prompt, "Beginner (No vocabulary data available)")
	assert.Contains(t, reqs[0].Prompt, "approximately 20% new vocabulary")
	assert.Contains(t, reqs[0].Prompt, "into Spanish for a English speaker")
	assert.Contains(t, reqs[0].Prompt, "I walked to the market.")
	assert.Contains(t, reqs[1].Prompt, "Caminé al mercado.")
	assert.NotContains(t, reqs[1].Prompt, "```")
}

func TestAdaptTagsKnownWords(t *testing.T) {
	svc, _, conn := newService(t, "Voy al mercado.",
		`[{"token":"Voy","lemma":"ir"},{"token":"mercado","lemma":"mercado"}]`)
	svc.Settings.Fingerprint = "High A2 learner."
	require.NoError(t, db.UpsertVocab(conn, db.VocabRecord{ID: 77, Word: "mercado", Lemma: "mercado", Status: db.StatusLearning}))

	got, err := svc.Adapt(context.Background(), "I go to the market.")
	require.NoError(t, err)
	require.Len(t, got.Words, 2)
	assert.Equal(t, db.StatusUntracked, got.Words[0].Status)
	assert.Equal(t, db.StatusLearning, got.Words[1].Status)
	assert.Equal(t, int64(77), got.Words[1].NoteID)
}

func TestAdaptLemmaFallsBackToToken(t *testing.T) {
	svc, _, _ := newService(t, "Café.", `[{"token":"Café","lemma":null,"translation":"coffee"},{"token":"","lemma":"x"}]`)

	got, err := svc.Adapt(context.Background(), "Coffee.")
	require.NoError(t, err)
	require.Len(t, got.Words, 1)
	assert.Equal(t, "Café", got.Words[0].Text)
	assert.Equal(t, "café", got.Words[0].Lemma)
	assert.Equal(t, "A1", got.Words[0].Level)
	assert.Equal(t, db.StatusUntracked, got.Words[0].Status)
}

func TestAdaptAnalysisErrors(t *testing.T) {
	long := `{"token": "` + strings.Repeat("x", 300) + `"}`
	tests := []struct {
		name, raw, reason string
	}{
		{"empty", "  ", "empty response"},
		{"object", long, "not an array"},
		{"null", "null", "not an array"},
		{"not json", "Here are the tokens: ...", "invalid character"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newService(t, "Hola.", tt.raw)
			_, err := svc.Adapt(context.Background(), "Hello.")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAnalysis))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}

	svc, _, _ := newService(t, "Hola.", long)
	_, err := svc.Adapt(context.Background(), "Hello.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), strings.Repeat("x", 150))
	assert.Contains(t, err.Error(), `..."`)
	assert.NotContains(t, err.Error(), strings.Repeat("x", 250))
}

func TestAdaptRewriteFailureStops(t *testing.T) {
	svc, c, _ := newService(t)
	c.Err = errors.New("rate limited")

	_, err := svc.Adapt(context.Background(), "Hello.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, 1, c.CallCount())

	_, err = svc.Adapt(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrEmptyText))
}

func saveEntry(t *testing.T, conn *sql.DB, words ...db.AnalyzedWord) db.AdaptedText {
	t.Helper()
	a := db.AdaptedText{
		ID:        "entry-1",
		Original:  "I walked to the market.",
		Adapted:   "Caminé al mercado.",
		Words:     words,
		CreatedAt: fixedNow,
	}
	require.NoError(t, db.SaveAdaptation(conn, a))
	return a
}

func TestAskStoresBothTurns(t *testing.T) {
	svc, c, conn := newService(t, "  'Caminé' is the preterite of caminar.  ")
	saveEntry(t, conn)

	reply, err := svc.Ask(context.Background(), "entry-1", "Why caminé?")
	require.NoError(t, err)
	assert.Equal(t, db.RoleAssistant, reply.Role)
	assert.Equal(t, "'Caminé' is the preterite of caminar.", reply.Content)

	p := c.Requests()[0].Prompt
	assert.Contains(t, p, `Original Text: "I walked to the market."`)
	assert.Contains(t, p, `Adapted Text: "Caminé al mercado."`)
	assert.Contains(t, p, "User Question: Why caminé?")

	got, err := db.GetAdaptation(conn, "entry-1")
	require.NoError(t, err)
	require.Len(t, got.ChatHistory, 2)
	assert.Equal(t, db.RoleUser, got.ChatHistory[0].Role)
	assert.Equal(t, "Why caminé?", got.ChatHistory[0].Content)
	assert.Equal(t, reply.Content, got.ChatHistory[1].Content)
}

func TestAskFailureStoresErrorTurn(t *testing.T) {
	svc, c, conn := newService(t)
	c.Err = errors.New("timeout")
	saveEntry(t, conn)

	_, err := svc.Ask(context.Background(), "entry-1", "Why?")
	require.Error(t, err)

	got, err := db.GetAdaptation(conn, "entry-1")
	require.NoError(t, err)
	require.Len(t, got.ChatHistory, 2)
	assert.True(t, strings.HasPrefix(got.ChatHistory[1].Content, "Error: "))
	assert.Contains(t, got.ChatHistory[1].Content, "timeout")

	_, err = svc.Ask(context.Background(), "missing", "Why?")
	assert.True(t, errors.Is(err, db.ErrNotFound))
}

func TestAddToVocabulary(t *testing.T) {
	srv := ankitest.NewServer()
	defer srv.Close()
	srv.Decks = []string{"Default", "Spanish::Mined"}

	svc, _, conn := newService(t)
	svc.Anki = anki.NewClient(srv.URL)
	saveEntry(t, conn,
		db.AnalyzedWord{Text: "mercado", Lemma: "mercado", Status: db.StatusUntracked, Definition: "market"},
		db.AnalyzedWord{Text: "al", Lemma: "al", Status: db.StatusUntracked},
	)

	added, err := svc.AddToVocabulary(context.Background(), "mercado", "market place")
	require.NoError(t, err)
	assert.Equal(t, "Spanish::Mined", added.Deck)
	assert.Equal(t, 1, added.Patched)

	notes := srv.AddedNotes()
	require.Len(t, notes, 1)
	assert.Equal(t, "Basic", notes[0].ModelName)
	assert.Equal(t, map[string]string{"Front": "mercado", "Back": "market place"}, notes[0].Fields)
	assert.Equal(t, []string{Tag}, notes[0].Tags)

	rec, err := db.GetVocabByLemma(conn, "mercado")
	require.NoError(t, err)
	assert.Equal(t, added.NoteID, rec.ID)
	assert.Equal(t, db.StatusNew, rec.Status)

	got, err := db.GetAdaptation(conn, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, db.StatusNew, got.Words[0].Status)
	assert.Equal(t, added.NoteID, got.Words[0].NoteID)
	assert.Equal(t, "market place", got.Words[0].Definition)
	assert.Equal(t, db.StatusUntracked, got.Words[1].Status)
}

func TestAddToVocabularyMixedCase(t *testing.T) {
	srv := ankitest.NewServer()
	defer srv.Close()
	srv.Decks = []string{"Spanish"}

	svc, _, conn := newService(t)
	svc.Anki = anki.NewClient(srv.URL)
	saveEntry(t, conn, db.AnalyzedWord{Text: "Café", Lemma: "café", Status: db.StatusUntracked})

	added, err := svc.AddToVocabulary(context.Background(), " Café ", "coffee")
	require.NoError(t, err)
	assert.Equal(t, 1, added.Patched)

	notes := srv.AddedNotes()
	require.Len(t, notes, 1)
	assert.Equal(t, "Café", notes[0].Fields["Front"])

	rec, err := db.GetVocabByLemma(conn, "café")
	require.NoError(t, err)
	assert.Equal(t, added.NoteID, rec.ID)
	assert.Equal(t, "café", rec.Word)

	got, err := db.GetAdaptation(conn, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, db.StatusNew, got.Words[0].Status)
	assert.Equal(t, "coffee", got.Words[0].Definition)
}

func TestAddToVocabularyDeckFallback(t *testing.T) {
	srv := ankitest.NewServer()
	defer srv.Close()

	svc, _, _ := newService(t)
	svc.Anki = anki.NewClient(srv.URL)

	_, err := svc.AddToVocabulary(context.Background(), "gato", "cat")
	assert.True(t, errors.Is(err, ErrNoDeck))

	srv.Decks = []string{"Default"}
	added, err := svc.AddToVocabulary(context.Background(), "gato", "cat")
	require.NoError(t, err)
	assert.Equal(t, "Default", added.Deck)
}
