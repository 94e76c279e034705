// Package store persists sessions, executions and queue journal entries in
// a local sqlite database. Status snapshots and dashboard entries are pure
// in-memory caches and are deliberately not persisted; they rebuild from
// session plus git state after a restart.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
	"github.com/ScriptedAlchemy/corral/internal/session"
)

// Store wraps the sqlite database.
type Store struct {
	database *sql.DB
	dbPath   string
}

// Open opens (creating if needed) the database at dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, corralerrors.StoreOpenFailed(dbPath, err)
	}

	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, corralerrors.StoreOpenFailed(dbPath, err)
	}
	database.SetMaxOpenConns(1)

	store := &Store{database: database, dbPath: dbPath}
	if err := store.migrate(context.Background()); err != nil {
		_ = database.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.database.Close()
}

// DBPath returns the path the store was opened with.
func (s *Store) DBPath() string {
	return s.dbPath
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			project_id TEXT NOT NULL,
			worktree_path TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT '',
			base_branch TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			favorite INTEGER NOT NULL DEFAULT 0,
			archived INTEGER NOT NULL DEFAULT 0,
			auto_commit INTEGER NOT NULL DEFAULT 0,
			commit_mode TEXT NOT NULL DEFAULT 'checkpoint',
			model TEXT NOT NULL DEFAULT '',
			display_order INTEGER NOT NULL DEFAULT 0,
			is_main_repo INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id, display_order);`,
		`CREATE TABLE IF NOT EXISTS executions (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			commit_hash TEXT NOT NULL,
			additions INTEGER NOT NULL DEFAULT 0,
			deletions INTEGER NOT NULL DEFAULT 0,
			files_changed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			PRIMARY KEY(session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS queue_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			state TEXT NOT NULL,
			error_message TEXT NULL,
			created_at TEXT NOT NULL,
			completed_at TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_state ON queue_journal(state);`,
	}

	for _, statement := range statements {
		if _, err := s.database.ExecContext(ctx, statement); err != nil {
			return corralerrors.E(corralerrors.Op("store.migrate"), corralerrors.KindStore, err)
		}
	}
	return nil
}

// SaveSession upserts a session row.
func (s *Store) SaveSession(ctx context.Context, sess session.Session) error {
	_, err := s.database.ExecContext(ctx,
		`INSERT INTO sessions(id, name, project_id, worktree_path, branch, base_branch, status,
			favorite, archived, auto_commit, commit_mode, model, display_order, is_main_repo, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			favorite = excluded.favorite,
			archived = excluded.archived,
			auto_commit = excluded.auto_commit,
			commit_mode = excluded.commit_mode,
			model = excluded.model,
			display_order = excluded.display_order`,
		sess.ID, sess.Name, sess.ProjectID, sess.WorktreePath, sess.Branch, sess.BaseBranch,
		string(sess.Status), boolInt(sess.Favorite), boolInt(sess.Archived), boolInt(sess.AutoCommit),
		string(sess.CommitMode), sess.Model, sess.DisplayOrder, boolInt(sess.IsMainRepo),
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// DeleteSession removes a session row and its executions.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.database.ExecContext(ctx, `DELETE FROM executions WHERE session_id = ?`, id); err != nil {
		return err
	}
	_, err := s.database.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// ListSessions returns all persisted sessions.
func (s *Store) ListSessions(ctx context.Context) ([]session.Session, error) {
	rows, err := s.database.QueryContext(ctx,
		`SELECT id, name, project_id, worktree_path, branch, base_branch, status,
			favorite, archived, auto_commit, commit_mode, model, display_order, is_main_repo, created_at
		 FROM sessions
		 ORDER BY project_id, display_order, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		var sess session.Session
		var status, commitMode, createdAt string
		var favorite, archived, autoCommit, isMainRepo int
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.ProjectID, &sess.WorktreePath,
			&sess.Branch, &sess.BaseBranch, &status,
			&favorite, &archived, &autoCommit, &commitMode, &sess.Model,
			&sess.DisplayOrder, &isMainRepo, &createdAt); err != nil {
			return nil, err
		}
		sess.Status = session.Status(status)
		sess.CommitMode = session.CommitMode(commitMode)
		sess.Favorite = favorite != 0
		sess.Archived = archived != 0
		sess.AutoCommit = autoCommit != 0
		sess.IsMainRepo = isMainRepo != 0
		sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ExecutionRow is one persisted execution.
type ExecutionRow struct {
	SessionID    string
	Seq          int
	CommitHash   string
	Additions    int
	Deletions    int
	FilesChanged int
	CreatedAt    time.Time
}

// InsertExecution appends an execution row.
func (s *Store) InsertExecution(ctx context.Context, row ExecutionRow) error {
	_, err := s.database.ExecContext(ctx,
		`INSERT INTO executions(session_id, seq, commit_hash, additions, deletions, files_changed, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		row.SessionID, row.Seq, row.CommitHash, row.Additions, row.Deletions, row.FilesChanged,
		row.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListExecutions returns a session's executions in sequence order.
func (s *Store) ListExecutions(ctx context.Context, sessionID string) ([]ExecutionRow, error) {
	rows, err := s.database.QueryContext(ctx,
		`SELECT session_id, seq, commit_hash, additions, deletions, files_changed, created_at
		 FROM executions WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []ExecutionRow
	for rows.Next() {
		var row ExecutionRow
		var createdAt string
		if err := rows.Scan(&row.SessionID, &row.Seq, &row.CommitHash,
			&row.Additions, &row.Deletions, &row.FilesChanged, &createdAt); err != nil {
			return nil, err
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		executions = append(executions, row)
	}
	return executions, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
