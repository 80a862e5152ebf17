package db

import (
	"errors"
	"testing"
	"time"
)

func sampleAdaptation(id string, created time.Time) AdaptedText {
	return AdaptedText{
		ID:       id,
		Original: "I eat apples.",
		Adapted:  "Yo como manzanas.",
		Words: []AnalyzedWord{
			{Text: "Yo", Lemma: "yo", Level: "A1", Status: StatusReview, NoteID: 1},
			{Text: "como", Lemma: "comer", Level: "A1", Status: StatusUntracked},
			{Text: "manzanas", Lemma: "manzana", Level: "A1", Status: StatusUntracked},
		},
		CreatedAt: created,
	}
}

func TestAdaptationHistory(t *testing.T) {
	db := setupTestDB(t)
	base := time.UnixMilli(1_700_000_000_000)
	if err := SaveAdaptation(db, sampleAdaptation("a", base)); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := SaveAdaptation(db, sampleAdaptation("b", base.Add(time.Second))); err != nil {
		t.Fatalf("save b: %v", err)
	}
	if err := SaveAdaptation(db, sampleAdaptation("a", base)); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}

	list, err := ListAdaptations(db, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list[0].ChatHistory == nil || len(list[0].ChatHistory) != 0 {
		t.Fatalf("expected empty chat history, got %#v", list[0].ChatHistory)
	}
	if len(list[1].Words) != 3 || list[1].Words[1].Status != StatusUntracked {
		t.Fatalf("words not preserved: %+v", list[1].Words)
	}

	limited, err := ListAdaptations(db, 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(limited))
	}

	if err := DeleteAdaptation(db, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := DeleteAdaptation(db, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := GetAdaptation(db, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendChatMessage(t *testing.T) {
	db := setupTestDB(t)
	if err := SaveAdaptation(db, sampleAdaptation("a", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	msgs := []Message{
		{ID: "1", Role: RoleUser, Content: "What does como mean?", Timestamp: time.Now()},
		{ID: "2", Role: RoleAssistant, Content: "It means I eat.", Timestamp: time.Now()},
	}
	for _, m := range msgs {
		if err := AppendChatMessage(db, "a", m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := GetAdaptation(db, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.ChatHistory) != 2 || got.ChatHistory[0].Role != RoleUser || got.ChatHistory[1].Content != "It means I eat." {
		t.Fatalf("unexpected chat history %+v", got.ChatHistory)
	}
	if got.Original != "I eat apples." || got.Adapted != "Yo como manzanas." {
		t.Fatalf("texts changed: %+v", got)
	}
	if err := AppendChatMessage(db, "missing", msgs[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPatchWord(t *testing.T) {
	db := setupTestDB(t)
	for _, id := range []string{"a", "b"} {
		if err := SaveAdaptation(db, sampleAdaptation(id, time.Now())); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	n, err := PatchWord(db, "comer", 77, "to eat")
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 entries patched, got %d", n)
	}
	got, err := GetAdaptation(db, "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	w := got.Words[1]
	if w.Status != StatusNew || w.NoteID != 77 || w.Definition != "to eat" {
		t.Fatalf("word not patched: %+v", w)
	}
	if got.Words[2].Status != StatusUntracked {
		t.Fatalf("unrelated word changed: %+v", got.Words[2])
	}
}
