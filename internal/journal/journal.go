package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Event type constants.
const (
	EventProcessStarted      = "process.started"
	EventMessageReceived     = "message.received"
	EventCompletionSucceeded = "completion.succeeded"
	EventCompletionFailed    = "completion.failed"
	EventHistoryCleared      = "history.cleared"
)

// Journal records relay events. Implementations must be safe for concurrent use.
type Journal interface {
	Log(parentID *int64, eventType string, payload map[string]any) (int64, error)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(*int64, string, map[string]any) (int64, error) { return 0, nil }

// SQLite is an append-only event log backed by a SQLite database. Nothing in
// the relay reads it back.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the journal database at path, ensuring that the
// parent directory exists and the schema is present.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal at %s: %w", path, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	`)
	return err
}

// Log inserts an event and returns its id. parentID may be nil for root
// events. A nil payload stores NULL.
func (j *SQLite) Log(parentID *int64, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	res, err := j.db.Exec(
		`INSERT INTO events (parent_id, event_type, payload) VALUES (?, ?, ?)`,
		parentID, eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}

// Counts returns the number of recorded events per event type.
func (j *SQLite) Counts() (map[string]int, error) {
	rows, err := j.db.Query(`SELECT event_type, COUNT(*) FROM events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, err
		}
		counts[eventType] = n
	}
	return counts, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
