package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions, transcripts, and tool calls",
		SQL: `
			CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				started_at  TEXT NOT NULL DEFAULT (datetime('now')),
				ended_at    TEXT,
				end_state   TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE transcripts (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				source      TEXT NOT NULL,
				content     TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_transcripts_session ON transcripts (session_id, id);

			CREATE TABLE tool_calls (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				call_id     TEXT NOT NULL,
				tool        TEXT NOT NULL,
				error_kind  TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_tool_calls_session ON tool_calls (session_id, id);
		`,
	},
}
