package store

import (
	"time"

	"github.com/soyeahso/liverelay/internal/media"
)

// Recorder persists session lifecycle events, transcript lines, and tool
// call outcomes for post-hoc review. It satisfies the session layer's
// Recorder contract; write failures are logged, never surfaced, so
// persistence can never stall a live session.
type Recorder struct {
	db *DB
}

// NewRecorder creates a recorder over an open database.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// SessionStarted inserts a session row.
func (r *Recorder) SessionStarted(id string) {
	_, err := r.db.sql.Exec("INSERT INTO sessions (id) VALUES (?)", id)
	if err != nil {
		r.db.log.Warn().Err(err).Str("sessionId", id).Msg("recording session start failed")
	}
}

// SessionEnded marks a session row closed.
func (r *Recorder) SessionEnded(id, state string) {
	_, err := r.db.sql.Exec(
		"UPDATE sessions SET ended_at = ?, end_state = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), state, id)
	if err != nil {
		r.db.log.Warn().Err(err).Str("sessionId", id).Msg("recording session end failed")
	}
}

// Transcript appends one transcription line.
func (r *Recorder) Transcript(sessionID string, source media.TranscriptSource, text string) {
	_, err := r.db.sql.Exec(
		"INSERT INTO transcripts (session_id, source, content) VALUES (?, ?, ?)",
		sessionID, string(source), text)
	if err != nil {
		r.db.log.Warn().Err(err).Str("sessionId", sessionID).Msg("recording transcript failed")
	}
}

// ToolCall records one tool invocation outcome. errKind is empty on success.
func (r *Recorder) ToolCall(sessionID, callID, name, errKind string) {
	_, err := r.db.sql.Exec(
		"INSERT INTO tool_calls (session_id, call_id, tool, error_kind) VALUES (?, ?, ?, ?)",
		sessionID, callID, name, errKind)
	if err != nil {
		r.db.log.Warn().Err(err).Str("sessionId", sessionID).Msg("recording tool call failed")
	}
}

// SessionRow is one persisted session.
type SessionRow struct {
	ID        string
	StartedAt string
	EndedAt   string
	EndState  string
}

// TranscriptRow is one persisted transcript line.
type TranscriptRow struct {
	Source    string
	Content   string
	CreatedAt string
}

// RecentSessions lists the most recently started sessions, newest first.
func (r *Recorder) RecentSessions(limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.sql.Query(
		"SELECT id, started_at, COALESCE(ended_at, ''), end_state FROM sessions ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var s SessionRow
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.EndState); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SessionTranscript returns a session's transcript lines in order.
func (r *Recorder) SessionTranscript(sessionID string) ([]TranscriptRow, error) {
	rows, err := r.db.sql.Query(
		"SELECT source, content, created_at FROM transcripts WHERE session_id = ? ORDER BY id", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TranscriptRow
	for rows.Next() {
		var t TranscriptRow
		if err := rows.Scan(&t.Source, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
