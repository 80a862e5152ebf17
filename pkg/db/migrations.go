package db

// migrationsSQL is split on ';' by InitDB, so statements and comments here
// must not contain one.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS vocabulary (
	id INTEGER PRIMARY KEY,
	word TEXT NOT NULL,
	lemma TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'new',
	definition TEXT NOT NULL DEFAULT '',
	last_synced INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vocabulary_lemma ON vocabulary(lemma);
CREATE INDEX IF NOT EXISTS idx_vocabulary_word ON vocabulary(word);

-- single row, id is always 1
CREATE TABLE IF NOT EXISTS sync_stats (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_synced INTEGER NOT NULL,
	decks TEXT NOT NULL DEFAULT '[]',
	total_words INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS adaptations (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	original TEXT NOT NULL,
	adapted TEXT NOT NULL,
	words TEXT NOT NULL DEFAULT '[]',
	chat_history TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_adaptations_created ON adaptations(created_at);
`
