// Package history keeps a local record of lifecycle operations.
//
// Every generate, compile, load and unload the CLI performs is appended to a
// SQLite database under the working directory. Events from one CLI
// invocation share a run id. The registry answers "what is loaded now";
// history answers "what happened".
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"grimm.is/sieve/internal/clock"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("history store is closed")

// Action names a lifecycle operation.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionCompile  Action = "compile"
	ActionLoad     Action = "load"
	ActionUnload   Action = "unload"
)

// Event is one recorded operation.
type Event struct {
	ID        int64
	RunID     string
	Time      time.Time
	Action    Action
	Program   string
	Target    string
	Interface string
	Mode      string
	ProgramID int
	Error     string
}

// Succeeded reports whether the operation completed.
func (e Event) Succeeded() bool { return e.Error == "" }

// Options configures the store.
type Options struct {
	Path  string // ":memory:" for an in-memory database
	Clock clock.Clock
}

// Store appends and lists events.
type Store struct {
	db    *sql.DB
	clock clock.Clock
	runID string

	mu     sync.Mutex
	closed bool
}

// Open opens or creates the database at opts.Path.
func Open(opts Options) (*Store, error) {
	dsn := opts.Path
	if opts.Path != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database is per connection, and writes
	// are serialized anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	s := &Store{db: db, clock: clk, runID: uuid.NewString()}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			action TEXT NOT NULL,
			program TEXT NOT NULL,
			target TEXT NOT NULL,
			interface TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL DEFAULT '',
			program_id INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_events_program ON events(program);
	`)
	return err
}

// RunID identifies events recorded through this store.
func (s *Store) RunID() string { return s.runID }

// Record appends e, filling in the run id and time.
func (s *Store) Record(ctx context.Context, e Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return e, ErrStoreClosed
	}

	e.RunID = s.runID
	e.Time = s.clock.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, ts, action, program, target, interface, mode, program_id, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time.UnixNano(), string(e.Action), e.Program, e.Target, e.Interface, e.Mode, e.ProgramID, e.Error)
	if err != nil {
		return e, fmt.Errorf("failed to record %s event: %w", e.Action, err)
	}
	e.ID, _ = res.LastInsertId()
	return e, nil
}

// Recent returns up to limit events, newest first. program filters when set.
func (s *Store) Recent(ctx context.Context, program string, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, run_id, ts, action, program, target, interface, mode, program_id, error FROM events`
	args := []any{}
	if program != "" {
		query += ` WHERE program = ?`
		args = append(args, program)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e      Event
			ts     int64
			action string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &ts, &action, &e.Program, &e.Target,
			&e.Interface, &e.Mode, &e.ProgramID, &e.Error); err != nil {
			return nil, err
		}
		e.Time = time.Unix(0, ts)
		e.Action = Action(action)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
