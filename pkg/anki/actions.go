package anki

import (
	"context"
	"sort"
)

// Field is one note field as reported by notesInfo.
type Field struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// Note is a notesInfo entry.
type Note struct {
	NoteID    int64            `json:"noteId"`
	ModelName string           `json:"modelName"`
	Tags      []string         `json:"tags"`
	Fields    map[string]Field `json:"fields"`
	Cards     []int64          `json:"cards"`
}

// OrderedFieldNames returns the field names sorted by their order attribute.
func (n Note) OrderedFieldNames() []string {
	names := make([]string, 0, len(n.Fields))
	for name := range n.Fields {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := n.Fields[names[i]].Order, n.Fields[names[j]].Order
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})
	return names
}

// Card is a cardsInfo entry. Queue is -3/-2 buried, -1 suspended, 0 new,
// 1 learning, 2 review, 3 relearning.
type Card struct {
	CardID int64  `json:"cardId"`
	NoteID int64  `json:"note"`
	Deck   string `json:"deckName"`
	Queue  int    `json:"queue"`
}

// NewNote is the payload of AddNote.
type NewNote struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags,omitempty"`
}

// DeckNames lists every deck.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var out []string
	err := c.Invoke(ctx, "deckNames", nil, &out)
	return out, err
}

// ModelNames lists every note type.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	var out []string
	err := c.Invoke(ctx, "modelNames", nil, &out)
	return out, err
}

// ModelFieldNames lists the fields of a note type in order.
func (c *Client) ModelFieldNames(ctx context.Context, model string) ([]string, error) {
	var out []string
	err := c.Invoke(ctx, "modelFieldNames", map[string]any{"modelName": model}, &out)
	return out, err
}

// FindNotes returns the ids of notes matching an Anki search query.
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var out []int64
	err := c.Invoke(ctx, "findNotes", map[string]any{"query": query}, &out)
	return out, err
}

// NotesInfo fetches the given notes in one call.
func (c *Client) NotesInfo(ctx context.Context, ids []int64) ([]Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []Note
	err := c.Invoke(ctx, "notesInfo", map[string]any{"notes": ids}, &out)
	return out, err
}

// CardsInfo fetches the given cards in one call.
func (c *Client) CardsInfo(ctx context.Context, ids []int64) ([]Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []Card
	err := c.Invoke(ctx, "cardsInfo", map[string]any{"cards": ids}, &out)
	return out, err
}

// AddNote creates a note and returns its id.
func (c *Client) AddNote(ctx context.Context, n NewNote) (int64, error) {
	var id int64
	err := c.Invoke(ctx, "addNote", map[string]any{"note": n}, &id)
	return id, err
}

// Version returns the AnkiConnect protocol version the server speaks.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	err := c.Invoke(ctx, "version", nil, &v)
	return v, err
}
