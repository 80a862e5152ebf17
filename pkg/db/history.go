package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SaveAdaptation appends a to history. An existing id is an error: stored
// texts are immutable.
func SaveAdaptation(db DBExecutor, a AdaptedText) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("adaptation id must be non-empty")
	}
	words, err := marshalList(a.Words)
	if err != nil {
		return err
	}
	chat, err := marshalList(a.ChatHistory)
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO adaptations (id, created_at, original, adapted, words, chat_history)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt.UnixMilli(), a.Original, a.Adapted, words, chat)
	if err != nil {
		return fmt.Errorf("save adaptation %s: %w", a.ID, err)
	}
	return nil
}

// ListAdaptations returns history newest first. limit <= 0 returns everything.
func ListAdaptations(db DBExecutor, limit int) ([]AdaptedText, error) {
	q := `SELECT id, created_at, original, adapted, words, chat_history FROM adaptations ORDER BY created_at DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AdaptedText
	for rows.Next() {
		a, err := scanAdaptation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAdaptation returns one history entry.
func GetAdaptation(db DBExecutor, id string) (AdaptedText, error) {
	row := db.QueryRow(`SELECT id, created_at, original, adapted, words, chat_history FROM adaptations WHERE id = ?`, id)
	a, err := scanAdaptation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AdaptedText{}, ErrNotFound
	}
	if err != nil {
		return AdaptedText{}, fmt.Errorf("get adaptation %s: %w", id, err)
	}
	return a, nil
}

// DeleteAdaptation removes one history entry.
func DeleteAdaptation(db DBExecutor, id string) error {
	res, err := db.Exec(`DELETE FROM adaptations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete adaptation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendChatMessage adds msg to the end of an entry's chat history. Callers
// that may race should pass a *sql.Tx.
func AppendChatMessage(db DBExecutor, id string, msg Message) error {
	var raw string
	err := db.QueryRow(`SELECT chat_history FROM adaptations WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load chat %s: %w", id, err)
	}
	var history []Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return fmt.Errorf("decode chat %s: %w", id, err)
	}
	history = append(history, msg)
	enc, err := marshalList(history)
	if err != nil {
		return err
	}
	if _, err := db.Exec(`UPDATE adaptations SET chat_history = ? WHERE id = ?`, enc, id); err != nil {
		return fmt.Errorf("append chat %s: %w", id, err)
	}
	return nil
}

// PatchWord marks every word of every history entry whose lemma equals lemma
// as a new vocabulary item with the given note id. An empty definition keeps
// the stored one. It returns the number of entries changed.
func PatchWord(db DBExecutor, lemma string, noteID int64, definition string) (int, error) {
	rows, err := db.Query(`SELECT id, words FROM adaptations`)
	if err != nil {
		return 0, err
	}
	type entry struct {
		id    string
		words []AnalyzedWord
	}
	var changed []entry
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		var words []AnalyzedWord
		if err := json.Unmarshal([]byte(raw), &words); err != nil {
			rows.Close()
			return 0, fmt.Errorf("decode words %s: %w", id, err)
		}
		if PatchWords(words, lemma, noteID, definition) > 0 {
			changed = append(changed, entry{id: id, words: words})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, e := range changed {
		enc, err := marshalList(e.words)
		if err != nil {
			return 0, err
		}
		if _, err := db.Exec(`UPDATE adaptations SET words = ? WHERE id = ?`, enc, e.id); err != nil {
			return 0, fmt.Errorf("patch words %s: %w", e.id, err)
		}
	}
	return len(changed), nil
}

// PatchWords applies the manual add-to-vocabulary patch to words in place
// and returns how many were changed.
func PatchWords(words []AnalyzedWord, lemma string, noteID int64, definition string) int {
	n := 0
	for i := range words {
		if words[i].Lemma != lemma {
			continue
		}
		words[i].Status = StatusNew
		words[i].NoteID = noteID
		if definition != "" {
			words[i].Definition = definition
		}
		n++
	}
	return n
}

func scanAdaptation(s scanner) (AdaptedText, error) {
	var a AdaptedText
	var created int64
	var words, chat string
	if err := s.Scan(&a.ID, &created, &a.Original, &a.Adapted, &words, &chat); err != nil {
		return AdaptedText{}, err
	}
	a.CreatedAt = time.UnixMilli(created)
	if err := json.Unmarshal([]byte(words), &a.Words); err != nil {
		return AdaptedText{}, fmt.Errorf("decode words %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(chat), &a.ChatHistory); err != nil {
		return AdaptedText{}, fmt.Errorf("decode chat %s: %w", a.ID, err)
	}
	return a, nil
}

// marshalList encodes a nil slice as [] so stored columns are never null.
func marshalList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
