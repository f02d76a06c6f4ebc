package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/liverelay/internal/logging"
	"github.com/soyeahso/liverelay/internal/media"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsApplyOnce(t *testing.T) {
	db := openTestDB(t)

	var count int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)

	// Re-running is a no-op.
	require.NoError(t, db.migrate())
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestRecorderSessionLifecycle(t *testing.T) {
	rec := NewRecorder(openTestDB(t))

	rec.SessionStarted("s-1")
	rec.SessionEnded("s-1", "closed")

	sessions, err := rec.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].ID)
	assert.Equal(t, "closed", sessions[0].EndState)
	assert.NotEmpty(t, sessions[0].EndedAt)
}

func TestRecorderTranscriptOrder(t *testing.T) {
	rec := NewRecorder(openTestDB(t))
	rec.SessionStarted("s-2")

	rec.Transcript("s-2", media.TranscriptInput, "how are you")
	rec.Transcript("s-2", media.TranscriptOutput, "doing well")
	rec.Transcript("s-2", media.TranscriptInput, "glad to hear it")

	lines, err := rec.SessionTranscript("s-2")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "input", lines[0].Source)
	assert.Equal(t, "how are you", lines[0].Content)
	assert.Equal(t, "output", lines[1].Source)
	assert.Equal(t, "glad to hear it", lines[2].Content)
}

func TestRecorderToolCalls(t *testing.T) {
	rec := NewRecorder(openTestDB(t))
	rec.SessionStarted("s-3")

	rec.ToolCall("s-3", "call-1", "get_weather", "")
	rec.ToolCall("s-3", "call-2", "lookup", "timeout")

	var kind string
	require.NoError(t, rec.db.SQL().QueryRow(
		"SELECT error_kind FROM tool_calls WHERE call_id = ?", "call-2").Scan(&kind))
	assert.Equal(t, "timeout", kind)
}

func TestRecorderWriteFailureDoesNotPanic(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db)
	db.Close()

	// All writes degrade to logged warnings once the database is gone.
	rec.SessionStarted("s-4")
	rec.Transcript("s-4", media.TranscriptInput, "x")
	rec.ToolCall("s-4", "c", "t", "")
	rec.SessionEnded("s-4", "closed")
}
