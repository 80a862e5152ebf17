// Package ankitest runs an in-memory AnkiConnect server for tests.
package ankitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/japaniel/lingomorph/pkg/anki"
)

// Server fakes the AnkiConnect actions used by lingomorph. Populate the
// exported fields before issuing requests.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	Decks  []string
	Models map[string][]string
	// Notes per deck name.
	Notes map[string][]anki.Note
	Cards map[int64]anki.Card

	// Fail makes the named action return an RPC error.
	Fail map[string]string

	// Added records AddNote payloads.
	Added  []anki.NewNote
	nextID int64

	// Actions records every action in call order.
	Actions []string
}

// NewServer starts a fake AnkiConnect server. Close it when done.
func NewServer() *Server {
	s := &Server{
		Models: map[string][]string{"Basic": {"Front", "Back"}},
		Notes:  map[string][]anki.Note{},
		Cards:  map[int64]anki.Card{},
		Fail:   map[string]string{},
		nextID: 9_000_000,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddDeckNote stores a note in deck with one card per queue value.
func (s *Server) AddDeckNote(deck string, id int64, fields map[string]string, queues ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note := anki.Note{NoteID: id, ModelName: "Basic", Fields: map[string]anki.Field{}}
	order := 0
	for _, name := range sortedKeys(fields) {
		note.Fields[name] = anki.Field{Value: fields[name], Order: order}
		order++
	}
	for i, q := range queues {
		cid := id*10 + int64(i)
		note.Cards = append(note.Cards, cid)
		s.Cards[cid] = anki.Card{CardID: cid, NoteID: id, Deck: deck, Queue: q}
	}
	s.Notes[deck] = append(s.Notes[deck], note)
}

// SetNote stores a fully specified note, keeping its field order attributes.
func (s *Server) SetNote(deck string, note anki.Note, cards ...anki.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cards {
		s.Cards[c.CardID] = c
		note.Cards = append(note.Cards, c.CardID)
	}
	s.Notes[deck] = append(s.Notes[deck], note)
}

// CalledActions returns a copy of the recorded action names.
func (s *Server) CalledActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Actions...)
}

// AddedNotes returns a copy of the recorded AddNote payloads.
func (s *Server) AddedNotes() []anki.NewNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]anki.NewNote(nil), s.Added...)
}

type rpc struct {
	Action  string          `json:"action"`
	Version int             `json:"version"`
	Params  json.RawMessage `json:"params"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var req rpc
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Actions = append(s.Actions, req.Action)

	if msg, ok := s.Fail[req.Action]; ok {
		reply(w, nil, msg)
		return
	}
	if req.Version != anki.APIVersion {
		reply(w, nil, fmt.Sprintf("unsupported version %d", req.Version))
		return
	}

	switch req.Action {
	case "version":
		reply(w, anki.APIVersion, nil)
	case "deckNames":
		reply(w, nonNil(s.Decks), nil)
	case "modelNames":
		reply(w, sortedKeys(s.Models), nil)
	case "modelFieldNames":
		var p struct {
			ModelName string `json:"modelName"`
		}
		_ = json.Unmarshal(req.Params, &p)
		reply(w, nonNil(s.Models[p.ModelName]), nil)
	case "findNotes":
		var p struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(req.Params, &p)
		deck := strings.TrimSuffix(strings.TrimPrefix(p.Query, `deck:"`), `"`)
		ids := []int64{}
		for _, n := range s.Notes[deck] {
			ids = append(ids, n.NoteID)
		}
		reply(w, ids, nil)
	case "notesInfo":
		var p struct {
			Notes []int64 `json:"notes"`
		}
		_ = json.Unmarshal(req.Params, &p)
		want := map[int64]bool{}
		for _, id := range p.Notes {
			want[id] = true
		}
		out := []anki.Note{}
		for _, deck := range sortedKeys(s.Notes) {
			for _, n := range s.Notes[deck] {
				if want[n.NoteID] {
					out = append(out, n)
				}
			}
		}
		reply(w, out, nil)
	case "cardsInfo":
		var p struct {
			Cards []int64 `json:"cards"`
		}
		_ = json.Unmarshal(req.Params, &p)
		out := []anki.Card{}
		for _, id := range p.Cards {
			if c, ok := s.Cards[id]; ok {
				out = append(out, c)
			}
		}
		reply(w, out, nil)
	case "addNote":
		var p struct {
			Note anki.NewNote `json:"note"`
		}
		_ = json.Unmarshal(req.Params, &p)
		s.nextID++
		s.Added = append(s.Added, p.Note)
		reply(w, s.nextID, nil)
	default:
		reply(w, nil, "unsupported action")
	}
}

func reply(w http.ResponseWriter, result any, errMsg any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "error": errMsg})
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
