package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// UpsertVocab inserts rec or overwrites the record with the same id.
func UpsertVocab(db DBExecutor, rec VocabRecord) error {
	if rec.ID == 0 {
		return fmt.Errorf("vocab id must be non-zero")
	}
	word := strings.TrimSpace(rec.Word)
	if word == "" {
		return fmt.Errorf("vocab %d: word must be non-empty", rec.ID)
	}
	lemma := strings.TrimSpace(rec.Lemma)
	if lemma == "" {
		lemma = word
	}
	status := rec.Status
	if status == "" {
		status = StatusNew
	}
	_, err := db.Exec(`INSERT INTO vocabulary (id, word, lemma, status, definition, last_synced)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  word = excluded.word,
		  lemma = excluded.lemma,
		  status = excluded.status,
		  definition = excluded.definition,
		  last_synced = excluded.last_synced`,
		rec.ID, word, lemma, string(status), rec.Definition, rec.LastSynced.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert vocab %d: %w", rec.ID, err)
	}
	return nil
}

// GetVocabByLemma returns the record for lemma. When several notes share a
// lemma the most recently synced one wins, then the highest id.
func GetVocabByLemma(db DBExecutor, lemma string) (VocabRecord, error) {
	row := db.QueryRow(`SELECT id, word, lemma, status, definition, last_synced
		FROM vocabulary WHERE lemma = ?
		ORDER BY last_synced DESC, id DESC LIMIT 1`, lemma)
	rec, err := scanVocab(row)
	if errors.Is(err, sql.ErrNoRows) {
		return VocabRecord{}, ErrNotFound
	}
	if err != nil {
		return VocabRecord{}, fmt.Errorf("get vocab by lemma %q: %w", lemma, err)
	}
	return rec, nil
}

// GetVocab returns the record with the given note id.
func GetVocab(db DBExecutor, id int64) (VocabRecord, error) {
	row := db.QueryRow(`SELECT id, word, lemma, status, definition, last_synced
		FROM vocabulary WHERE id = ?`, id)
	rec, err := scanVocab(row)
	if errors.Is(err, sql.ErrNoRows) {
		return VocabRecord{}, ErrNotFound
	}
	if err != nil {
		return VocabRecord{}, fmt.Errorf("get vocab %d: %w", id, err)
	}
	return rec, nil
}

// AllVocab returns every stored record ordered by id.
func AllVocab(db DBExecutor) ([]VocabRecord, error) {
	rows, err := db.Query(`SELECT id, word, lemma, status, definition, last_synced FROM vocabulary ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VocabRecord
	for rows.Next() {
		rec, err := scanVocab(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountVocab returns the number of stored records.
func CountVocab(db DBExecutor) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM vocabulary`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVocab(s scanner) (VocabRecord, error) {
	var rec VocabRecord
	var status string
	var synced int64
	if err := s.Scan(&rec.ID, &rec.Word, &rec.Lemma, &status, &rec.Definition, &synced); err != nil {
		return VocabRecord{}, err
	}
	rec.Status = Status(status)
	rec.LastSynced = time.UnixMilli(synced)
	return rec, nil
}

// SaveSyncStats replaces the stored sync summary.
func SaveSyncStats(db DBExecutor, st SyncStats) error {
	decks := st.Decks
	if decks == nil {
		decks = []string{}
	}
	raw, err := json.Marshal(decks)
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO sync_stats (id, last_synced, decks, total_words) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  last_synced = excluded.last_synced,
		  decks = excluded.decks,
		  total_words = excluded.total_words`,
		st.LastSynced.UnixMilli(), string(raw), st.TotalWords)
	if err != nil {
		return fmt.Errorf("save sync stats: %w", err)
	}
	return nil
}

// GetSyncStats returns the last sync summary, or ErrNotFound before the first sync.
func GetSyncStats(db DBExecutor) (SyncStats, error) {
	var st SyncStats
	var synced int64
	var decks string
	err := db.QueryRow(`SELECT last_synced, decks, total_words FROM sync_stats WHERE id = 1`).Scan(&synced, &decks, &st.TotalWords)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncStats{}, ErrNotFound
	}
	if err != nil {
		return SyncStats{}, fmt.Errorf("get sync stats: %w", err)
	}
	st.LastSynced = time.UnixMilli(synced)
	if err := json.Unmarshal([]byte(decks), &st.Decks); err != nil {
		return SyncStats{}, fmt.Errorf("decode sync decks: %w", err)
	}
	return st, nil
}
