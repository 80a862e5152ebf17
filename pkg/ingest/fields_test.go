package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/japaniel/lingomorph/pkg/anki"
	"github.com/japaniel/lingomorph/pkg/db"
)

func note(fields map[string]anki.Field) anki.Note {
	return anki.Note{NoteID: 1, Fields: fields}
}

func TestExtractFields(t *testing.T) {
	tests := []struct {
		name           string
		fields         map[string]anki.Field
		word, meaning string
	}{
		{
			name: "aliases",
			fields: map[string]anki.Field{
				"Notes":      {Value: "ignore", Order: 0},
				"Expression": {Value: "<b>Comer</b>", Order: 1},
				"Meaning":    {Value: "to eat &amp; dine", Order: 2},
			},
			word: "comer", meaning: "to eat & dine",
		},
		{
			name: "alias priority beats field order",
			fields: map[string]anki.Field{
				"Vocab": {Value: "vocab", Order: 0},
				"Front": {Value: "front", Order: 1},
				"Back":  {Value: "back", Order: 2},
			},
			word: "front", meaning: "back",
		},
		{
			name: "positional fallback",
			fields: map[string]anki.Field{
				"Second": {Value: "gloss", Order: 1},
				"First":  {Value: "  Palabra<br>", Order: 0},
			},
			word: "palabra", meaning: "gloss",
		},
		{
			name:   "single field",
			fields: map[string]anki.Field{"Only": {Value: "solo", Order: 0}},
			word:   "solo",
		},
		{
			name: "case insensitive alias",
			fields: map[string]anki.Field{
				"WORD":        {Value: "Gato", Order: 1},
				"Translation": {Value: "<div>cat</div>", Order: 0},
			},
			word: "gato", meaning: "cat",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, d := extractFields(note(tt.fields))
			assert.Equal(t, tt.word, w)
			assert.Equal(t, tt.meaning, d)
		})
	}

	w, d := extractFields(anki.Note{})
	assert.Empty(t, w)
	assert.Empty(t, d)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "plain", stripHTML("plain"))
	assert.Equal(t, "bold and italic", stripHTML("<b>bold</b> and <i>italic</i>"))
	assert.Equal(t, "a < b", stripHTML("a &lt; b"))
	assert.Equal(t, "text", stripHTML("<style>p{}</style>text<script>x()</script>"))
}

func TestStatusFromQueues(t *testing.T) {
	tests := []struct {
		queues []int
		want   db.Status
	}{
		{[]int{0, 2}, db.StatusReview},
		{[]int{1, 0}, db.StatusLearning},
		{[]int{-1}, db.StatusSuspended},
		{[]int{3, 2}, db.StatusLearning},
		{[]int{2, 2}, db.StatusReview},
		{[]int{-1, 0}, db.StatusNew},
		{[]int{-3, -2}, db.StatusSuspended},
		{nil, db.StatusNew},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFromQueues(tt.queues), "%v", tt.queues)
	}
}
