package anki_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lingomorph/pkg/anki"
	"github.com/japaniel/lingomorph/pkg/anki/ankitest"
)

func rawServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInvokeProtocolErrors(t *testing.T) {
	tests := []struct {
		name, body string
	}{
		{"missing error field", `{"result": ["Default"]}`},
		{"extra field", `{"result": [], "error": null, "extra": 1}`},
		{"wrong pair", `{"result": [], "oops": null}`},
		{"not an object", `["Default"]`},
		{"not json", `hello`},
		{"wrong result type", `{"result": "Default", "error": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := anki.NewClient(rawServer(t, tt.body).URL)
			_, err := c.DeckNames(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, anki.ErrProtocol), "got %v", err)
		})
	}
}

func TestInvokeRPCError(t *testing.T) {
	c := anki.NewClient(rawServer(t, `{"result": null, "error": "collection is not available"}`).URL)
	_, err := c.DeckNames(context.Background())
	var rpcErr *anki.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "deckNames", rpcErr.Action)
	assert.Equal(t, "collection is not available", rpcErr.Message)
	assert.False(t, errors.Is(err, anki.ErrProtocol))
}

func TestInvokeTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := anki.NewClient(url).DeckNames(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, anki.ErrProtocol))
}

func TestInvokeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := anki.NewClient(srv.URL, anki.WithTimeout(20*time.Millisecond))
	_, err := c.DeckNames(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestActionsAgainstFakeServer(t *testing.T) {
	fake := ankitest.NewServer()
	defer fake.Close()
	fake.Decks = []string{"Default", "Spanish::Core"}
	fake.SetNote("Spanish::Core",
		anki.Note{NoteID: 1, ModelName: "Vocab", Fields: map[string]anki.Field{
			"Meaning":    {Value: "to eat", Order: 1},
			"Expression": {Value: "comer", Order: 0},
			"Notes":      {Value: "", Order: 2},
		}},
		anki.Card{CardID: 11, NoteID: 1, Queue: 2},
	)

	c := anki.NewClient(fake.URL)
	ctx := context.Background()

	decks, err := c.DeckNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Default", "Spanish::Core"}, decks)

	ids, err := c.FindNotes(ctx, `deck:"Spanish::Core"`)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	notes, err := c.NotesInfo(ctx, ids)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, []string{"Expression", "Meaning", "Notes"}, notes[0].OrderedFieldNames())

	cards, err := c.CardsInfo(ctx, notes[0].Cards)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, int64(1), cards[0].NoteID)
	assert.Equal(t, 2, cards[0].Queue)

	fieldNames, err := c.ModelFieldNames(ctx, "Basic")
	require.NoError(t, err)
	assert.Equal(t, []string{"Front", "Back"}, fieldNames)

	id, err := c.AddNote(ctx, anki.NewNote{DeckName: "Spanish::Core", ModelName: "Basic",
		Fields: map[string]string{"Front": "manzana", "Back": "apple"}, Tags: []string{"lingomorph"}})
	require.NoError(t, err)
	assert.NotZero(t, id)
	added := fake.AddedNotes()
	require.Len(t, added, 1)
	assert.Equal(t, "manzana", added[0].Fields["Front"])

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, anki.APIVersion, v)
}

func TestEmptyIDListsSkipCall(t *testing.T) {
	fake := ankitest.NewServer()
	defer fake.Close()
	c := anki.NewClient(fake.URL)

	notes, err := c.NotesInfo(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, notes)
	cards, err := c.CardsInfo(context.Background(), []int64{})
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.Empty(t, fake.CalledActions())
}
