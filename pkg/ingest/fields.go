package ingest

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/japaniel/lingomorph/pkg/anki"
	"github.com/japaniel/lingomorph/pkg/db"
)

// Field-name aliases in priority order, compared case-insensitively.
// Extend these when supporting new note types.
var (
	WordFieldAliases       = []string{"word", "front", "vocab", "expression"}
	DefinitionFieldAliases = []string{"definition", "back", "meaning", "translation"}
)

// extractFields returns the HTML-stripped term and gloss of a note. Without
// an alias match the first and second fields (by field order) are used.
func extractFields(n anki.Note) (word, definition string) {
	names := n.OrderedFieldNames()
	if len(names) == 0 {
		return "", ""
	}

	wordField := matchAlias(names, WordFieldAliases)
	if wordField == "" {
		wordField = names[0]
	}
	defField := matchAlias(names, DefinitionFieldAliases)
	if defField == "" && len(names) > 1 {
		defField = names[1]
	}

	word = strings.ToLower(strings.TrimSpace(stripHTML(n.Fields[wordField].Value)))
	if defField != "" {
		definition = strings.TrimSpace(stripHTML(n.Fields[defField].Value))
	}
	return word, definition
}

func matchAlias(names, aliases []string) string {
	for _, alias := range aliases {
		for _, name := range names {
			if strings.ToLower(name) == alias {
				return name
			}
		}
	}
	return ""
}

// stripHTML returns the text content of an HTML fragment with entities
// decoded. Script and style bodies are dropped.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}

// statusFromQueues derives a note's status from its cards' scheduling
// queues: learning beats review beats new beats suspended. A word counts as
// comfortably known only once every card has graduated.
func statusFromQueues(queues []int) db.Status {
	var review, fresh, negative bool
	for _, q := range queues {
		switch {
		case q == 1 || q == 3:
			return db.StatusLearning
		case q == 2:
			review = true
		case q == 0:
			fresh = true
		case q < 0:
			negative = true
		}
	}
	switch {
	case review:
		return db.StatusReview
	case fresh:
		return db.StatusNew
	case negative:
		return db.StatusSuspended
	}
	return db.StatusNew
}
