package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// Event is one journal row with its children attached.
type Event struct {
	ID        int64
	Timestamp int64
	ParentID  sql.NullInt64
	EventType string
	Payload   sql.NullString
	Children  []*Event
}

// OpenReadOnly opens an existing journal for inspection.
func OpenReadOnly(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal at %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

// LatestRoot returns the id of the most recent process.started event,
// optionally restricted to one role ("serve" or "console").
func (j *SQLite) LatestRoot(role string) (int64, error) {
	query := `SELECT id FROM events WHERE event_type = ? ORDER BY id DESC LIMIT 1`
	args := []any{EventProcessStarted}
	if role != "" {
		query = `SELECT id FROM events WHERE event_type = ?
			AND json_extract(payload, '$.role') = ?
			ORDER BY id DESC LIMIT 1`
		args = append(args, role)
	}

	var id int64
	err := j.db.QueryRow(query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no %s event found", EventProcessStarted)
	}
	return id, err
}

// Tree loads the subtree rooted at rootID.
func (j *SQLite) Tree(rootID int64) (*Event, error) {
	events, err := j.subtree(rootID)
	if err != nil {
		return nil, fmt.Errorf("query subtree of %d: %w", rootID, err)
	}
	root := buildTree(events, rootID)
	if root == nil {
		return nil, fmt.Errorf("event %d not found", rootID)
	}
	return root, nil
}

func (j *SQLite) subtree(rootID int64) ([]*Event, error) {
	rows, err := j.db.Query(`
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM events WHERE id = ?
			UNION ALL
			SELECT e.id FROM events e JOIN subtree s ON e.parent_id = s.id
		)
		SELECT e.id, e.timestamp, e.parent_id, e.event_type, e.payload
		FROM events e
		WHERE e.id IN (SELECT id FROM subtree)
		ORDER BY e.id ASC
	`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.ParentID, &ev.EventType, &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func buildTree(events []*Event, rootID int64) *Event {
	byID := make(map[int64]*Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	for _, ev := range events {
		if ev.ParentID.Valid && ev.ParentID.Int64 != ev.ID {
			if parent, ok := byID[ev.ParentID.Int64]; ok {
				parent.Children = append(parent.Children, ev)
			}
		}
	}
	for _, ev := range events {
		sort.Slice(ev.Children, func(a, b int) bool {
			return ev.Children[a].ID < ev.Children[b].ID
		})
	}
	return byID[rootID]
}
