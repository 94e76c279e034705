package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ScriptedAlchemy/corral/internal/logger"
)

// JournalBackend journals queue intents into the queue_journal table. It
// satisfies the queue's Backend interface. Journaling adds durability of
// intent only: a half-run git command is never re-executed after a crash,
// it is just reported by OrphanedEntries.
type JournalBackend struct {
	store *Store
}

// NewJournalBackend returns a journal backend over the store.
func NewJournalBackend(s *Store) *JournalBackend {
	return &JournalBackend{store: s}
}

// Append records an accepted operation as running.
func (j *JournalBackend) Append(sessionID, operation string) (int64, error) {
	result, err := j.store.database.ExecContext(context.Background(),
		`INSERT INTO queue_journal(session_id, operation, state, created_at)
		 VALUES(?, ?, 'running', ?)`,
		sessionID, operation, nowTimestamp())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Complete marks the journal entry done or failed. Journal bookkeeping
// failures are logged, not surfaced; the operation's own result stands.
func (j *JournalBackend) Complete(token int64, opErr error) {
	state := "done"
	var errMsg sql.NullString
	if opErr != nil {
		state = "failed"
		errMsg = sql.NullString{String: opErr.Error(), Valid: true}
	}
	_, err := j.store.database.ExecContext(context.Background(),
		`UPDATE queue_journal SET state = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		state, errMsg, nowTimestamp(), token)
	if err != nil {
		logger.Warn("Store: journal complete failed for entry %d: %v", token, err)
	}
}

// JournalEntry is one queue journal row.
type JournalEntry struct {
	ID           int64
	SessionID    string
	Operation    string
	State        string
	ErrorMessage string
	CreatedAt    time.Time
}

// OrphanedEntries returns journal entries still marked running, i.e. left
// behind by a crash mid-operation. They are reported, never re-run.
func (s *Store) OrphanedEntries(ctx context.Context) ([]JournalEntry, error) {
	rows, err := s.database.QueryContext(ctx,
		`SELECT id, session_id, operation, state, COALESCE(error_message, ''), created_at
		 FROM queue_journal WHERE state = 'running' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var entry JournalEntry
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Operation,
			&entry.State, &entry.ErrorMessage, &createdAt); err != nil {
			return nil, err
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
