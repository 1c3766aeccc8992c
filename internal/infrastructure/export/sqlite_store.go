// Package export persists session snapshots to SQLite for later inspection.
package export

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/ports"
)

// SQLiteStore persists session snapshots in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteStore creates (or opens) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		shell TEXT,
		working_dir TEXT,
		cols INTEGER,
		rows INTEGER,
		started_at TEXT,
		git_branch TEXT,
		git_dirty INTEGER,
		task TEXT,
		important_json TEXT,
		stats_json TEXT
	);
	CREATE TABLE IF NOT EXISTS records (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		command TEXT,
		directory TEXT,
		started_at TEXT,
		ended_at TEXT,
		exit_code INTEGER,
		output TEXT,
		error TEXT,
		duration_ms INTEGER,
		kind TEXT,
		PRIMARY KEY (session_id, seq)
	);`)
	return err
}

// Save upserts the snapshot. Saving the same session twice replaces its rows.
func (s *SQLiteStore) Save(snapshot domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	important, err := json.Marshal(snapshot.Important)
	if err != nil {
		return err
	}
	stats, err := json.Marshal(snapshot.Stats)
	if err != nil {
		return err
	}

	info := snapshot.Info
	if _, err := tx.Exec(`INSERT OR REPLACE INTO sessions
		(id, shell, working_dir, cols, rows, started_at, git_branch, git_dirty, task, important_json, stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Shell, info.WorkingDir, info.Cols, info.Rows,
		info.StartedAt.Format(time.RFC3339Nano),
		info.GitBranch, boolToInt(info.GitDirty), info.Task,
		string(important), string(stats),
	); err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM records WHERE session_id = ?", info.ID); err != nil {
		return err
	}
	for i, rec := range snapshot.Records {
		if _, err := tx.Exec(`INSERT INTO records
			(session_id, seq, command, directory, started_at, ended_at, exit_code, output, error, duration_ms, kind)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			info.ID, i, rec.Command, rec.Directory,
			rec.StartedAt.Format(time.RFC3339Nano),
			rec.EndedAt.Format(time.RFC3339Nano),
			rec.ExitCode, rec.Output, rec.ErrorText,
			rec.Duration.Milliseconds(), string(rec.Kind),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load reconstructs one session snapshot.
func (s *SQLiteStore) Load(sessionID string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap domain.SessionSnapshot
	var startedAt, important, stats string
	var dirty int
	row := s.db.QueryRow(`SELECT id, shell, working_dir, cols, rows, started_at, git_branch, git_dirty, task, important_json, stats_json
		FROM sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&snap.Info.ID, &snap.Info.Shell, &snap.Info.WorkingDir,
		&snap.Info.Cols, &snap.Info.Rows, &startedAt,
		&snap.Info.GitBranch, &dirty, &snap.Info.Task, &important, &stats); err != nil {
		if err == sql.ErrNoRows {
			return snap, fmt.Errorf("session %q not found", sessionID)
		}
		return snap, err
	}
	snap.Info.GitDirty = dirty == 1
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		snap.Info.StartedAt = t
	}
	if err := json.Unmarshal([]byte(important), &snap.Important); err != nil {
		return snap, err
	}
	if err := json.Unmarshal([]byte(stats), &snap.Stats); err != nil {
		return snap, err
	}

	rows, err := s.db.Query(`SELECT command, directory, started_at, ended_at, exit_code, output, error, duration_ms, kind
		FROM records WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var rec domain.CommandRecord
		var start, end, kind string
		var durationMS int64
		if err := rows.Scan(&rec.Command, &rec.Directory, &start, &end,
			&rec.ExitCode, &rec.Output, &rec.ErrorText, &durationMS, &kind); err != nil {
			return snap, err
		}
		if t, err := time.Parse(time.RFC3339Nano, start); err == nil {
			rec.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, end); err == nil {
			rec.EndedAt = t
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Kind = domain.CommandKind(kind)
		snap.Records = append(snap.Records, rec)
	}
	return snap, rows.Err()
}

// List returns the stored sessions, most recent first.
func (s *SQLiteStore) List() ([]domain.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, shell, working_dir, cols, rows, started_at, git_branch, git_dirty, task
		FROM sessions ORDER BY datetime(started_at) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var infos []domain.SessionInfo
	for rows.Next() {
		var info domain.SessionInfo
		var startedAt string
		var dirty int
		if err := rows.Scan(&info.ID, &info.Shell, &info.WorkingDir,
			&info.Cols, &info.Rows, &startedAt,
			&info.GitBranch, &dirty, &info.Task); err != nil {
			return nil, err
		}
		info.GitDirty = dirty == 1
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			info.StartedAt = t
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.SnapshotStore = (*SQLiteStore)(nil)
