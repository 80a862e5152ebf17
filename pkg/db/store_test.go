package db

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertVocabIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	first := time.UnixMilli(1_700_000_000_000)
	rec := VocabRecord{ID: 42, Word: "comiendo", Lemma: "comer", Status: StatusLearning, Definition: "eating", LastSynced: first}
	if err := UpsertVocab(db, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec.LastSynced = first.Add(time.Hour)
	if err := UpsertVocab(db, rec); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	n, err := CountVocab(db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 record, got %d", n)
	}
	got, err := GetVocab(db, 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Lemma != "comer" || got.Status != StatusLearning || got.Definition != "eating" {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.LastSynced.Equal(rec.LastSynced) {
		t.Fatalf("expected last synced %v, got %v", rec.LastSynced, got.LastSynced)
	}
}

func TestUpsertVocabDefaults(t *testing.T) {
	db := setupTestDB(t)
	if err := UpsertVocab(db, VocabRecord{ID: 1, Word: " gato ", LastSynced: time.Now()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := GetVocabByLemma(db, "gato")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Word != "gato" || got.Status != StatusNew {
		t.Fatalf("unexpected defaults %+v", got)
	}
	if err := UpsertVocab(db, VocabRecord{ID: 2, Word: "  "}); err == nil {
		t.Fatalf("expected error for empty word")
	}
}

func TestGetVocabByLemmaPrefersMostRecent(t *testing.T) {
	db := setupTestDB(t)
	base := time.UnixMilli(1_700_000_000_000)
	recs := []VocabRecord{
		{ID: 10, Word: "fui", Lemma: "ir", Status: StatusReview, LastSynced: base},
		{ID: 11, Word: "voy", Lemma: "ir", Status: StatusLearning, LastSynced: base.Add(time.Minute)},
		{ID: 9, Word: "iba", Lemma: "ir", Status: StatusNew, LastSynced: base},
	}
	for _, r := range recs {
		if err := UpsertVocab(db, r); err != nil {
			t.Fatalf("upsert %d: %v", r.ID, err)
		}
	}
	got, err := GetVocabByLemma(db, "ir")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != 11 {
		t.Fatalf("expected most recent note 11, got %d", got.ID)
	}

	if _, err := GetVocabByLemma(db, "ser"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncStatsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	if _, err := GetSyncStats(db); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first sync, got %v", err)
	}
	now := time.UnixMilli(1_700_000_123_000)
	for _, total := range []int{3, 7} {
		if err := SaveSyncStats(db, SyncStats{LastSynced: now, Decks: []string{"Spanish::Core"}, TotalWords: total}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	st, err := GetSyncStats(db)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.TotalWords != 7 || len(st.Decks) != 1 || st.Decks[0] != "Spanish::Core" || !st.LastSynced.Equal(now) {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestAllVocabOrdered(t *testing.T) {
	db := setupTestDB(t)
	for _, id := range []int64{3, 1, 2} {
		if err := UpsertVocab(db, VocabRecord{ID: id, Word: "w", LastSynced: time.Now()}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	all, err := AllVocab(db)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
		t.Fatalf("unexpected order %+v", all)
	}
}
