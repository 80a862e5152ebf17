package db

import "time"

// Status is the learning state of a vocabulary record.
type Status string

const (
	StatusNew       Status = "new"
	StatusLearning  Status = "learning"
	StatusReview    Status = "review"
	StatusSuspended Status = "suspended"
	StatusBuried    Status = "buried"
	// StatusUntracked marks analysed words that have no record in the store.
	// It is never persisted on a VocabRecord.
	StatusUntracked Status = "untracked"
)

// IsActive reports whether the word counts towards the learner's vocabulary.
func (s Status) IsActive() bool {
	return s == StatusNew || s == StatusLearning || s == StatusReview
}

// VocabRecord is one word synced from the flashcard tool. ID is the external
// note id and the upsert key.
type VocabRecord struct {
	ID         int64
	Word       string
	Lemma      string
	Status     Status
	Definition string
	LastSynced time.Time
}

// SyncStats summarises the last completed sync.
type SyncStats struct {
	LastSynced time.Time `json:"lastSynced"`
	Decks      []string  `json:"decks"`
	TotalWords int       `json:"totalWords"`
}

// AnalyzedWord is one token of an adapted text, tagged against the store.
type AnalyzedWord struct {
	Text       string `json:"text"`
	Lemma      string `json:"lemma"`
	Definition string `json:"definition,omitempty"`
	Level      string `json:"level,omitempty"`
	Status     Status `json:"status"`
	NoteID     int64  `json:"noteId,omitempty"`
}

// Message is one chat turn attached to an adaptation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AdaptedText is a history entry. Original and Adapted never change once
// stored; ChatHistory only grows.
type AdaptedText struct {
	ID          string         `json:"id"`
	Original    string         `json:"original"`
	Adapted     string         `json:"adapted"`
	Words       []AnalyzedWord `json:"words"`
	ChatHistory []Message      `json:"chatHistory"`
	CreatedAt   time.Time      `json:"createdAt"`
}
