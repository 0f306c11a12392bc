package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the persistence contract for run events.
type Store interface {
	Append(ctx context.Context, e Event) error
	ByTask(ctx context.Context, taskID string) ([]Event, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the history database.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, ErrOpenFailed.WithContext("path", dbPath).WithCause(err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ErrOpenFailed.WithContext("path", dbPath).WithCause(err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ErrSchemaFailed.WithContext("path", dbPath).WithCause(err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		phase TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_events_task ON run_events(task_id);
	CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds an event. A zero Timestamp is filled with the current time.
func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_events (run_id, task_id, round, phase, status, message, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.RunID, e.TaskID, e.Round, e.Phase, e.Status, e.Message, e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return ErrAppendFailed.WithContext("task", e.TaskID).WithCause(err)
	}
	return nil
}

// ByTask returns every event recorded for taskID, oldest first.
func (s *SQLiteStore) ByTask(ctx context.Context, taskID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, task_id, round, phase, status, message, timestamp FROM run_events WHERE task_id = ? ORDER BY id",
		taskID,
	)
	if err != nil {
		return nil, ErrQueryFailed.WithContext("task", taskID).WithCause(err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			message sql.NullString
			millis  int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.TaskID, &e.Round, &e.Phase, &e.Status, &message, &millis); err != nil {
			return nil, ErrQueryFailed.WithContext("task", taskID).WithCause(err)
		}
		e.Message = message.String
		e.Timestamp = time.UnixMilli(millis)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrQueryFailed.WithContext("task", taskID).WithCause(err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// NoopStore discards events. It is used when history is disabled.
type NoopStore struct{}

func (NoopStore) Append(context.Context, Event) error             { return nil }
func (NoopStore) ByTask(context.Context, string) ([]Event, error) { return nil, nil }
func (NoopStore) Close() error                                    { return nil }
