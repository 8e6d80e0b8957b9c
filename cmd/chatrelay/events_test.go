package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupiduntilnot/chatrelay/internal/history"
	"github.com/stupiduntilnot/chatrelay/internal/journal"
)

// seedJournal runs a short console session against a fresh journal:
//
//	process.started (console)
//	├── message.received
//	│   └── completion.succeeded
//	└── history.cleared
func seedJournal(t *testing.T) string {
	t.Helper()
	cfg := dummyConfig("msg:hello there")
	cfg.JournalPath = filepath.Join(t.TempDir(), "journal.db")

	r, closeJournal, err := buildRelay(cfg, history.NewStore(), "console", zerolog.Nop())
	require.NoError(t, err)
	r.HandleMessage(context.Background(), 3, "Hi")
	r.ResetHistory(context.Background(), 3)
	require.NoError(t, closeJournal())
	return cfg.JournalPath
}

func runEvents(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"events"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestEventsCmd_Tree(t *testing.T) {
	path := seedJournal(t)

	out, err := runEvents(t, "--db", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "process.started")
	assert.Contains(t, lines[0], "role=console")
	assert.True(t, strings.HasPrefix(lines[1], "├── "), lines[1])
	assert.Contains(t, lines[1], "message.received")
	assert.True(t, strings.HasPrefix(lines[2], "│   └── "), lines[2])
	assert.Contains(t, lines[2], "completion.succeeded")
	assert.True(t, strings.HasPrefix(lines[3], "└── "), lines[3])
	assert.Contains(t, lines[3], "history.cleared")
}

func TestEventsCmd_DepthLimit(t *testing.T) {
	path := seedJournal(t)

	out, err := runEvents(t, "--db", path, "-L", "1", "--no-payload")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "role=")
	assert.Equal(t, "└── [...]", lines[1])
}

func TestEventsCmd_JSON(t *testing.T) {
	path := seedJournal(t)

	out, err := runEvents(t, "--db", path, "--json")
	require.NoError(t, err)

	var root jsonEvent
	require.NoError(t, json.Unmarshal([]byte(out), &root))
	assert.Equal(t, journal.EventProcessStarted, root.EventType)
	assert.Equal(t, "console", root.Payload["role"])
	require.Len(t, root.Children, 2)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, journal.EventCompletionSucceeded, root.Children[0].Children[0].EventType)
}

func TestEventsCmd_Errors(t *testing.T) {
	t.Setenv("RELAY_JOURNAL_PATH", "")

	_, err := runEvents(t)
	assert.Error(t, err)

	_, err = runEvents(t, "--db", filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)

	path := seedJournal(t)
	_, err = runEvents(t, "--db", path, "--role", "serve")
	assert.Error(t, err)
}

func TestEventsCmd_Summary(t *testing.T) {
	path := seedJournal(t)

	out, err := runEvents(t, "--db", path, "--summary")
	require.NoError(t, err)

	assert.Equal(t, ""+
		"completion.succeeded   1\n"+
		"history.cleared        1\n"+
		"message.received       1\n"+
		"process.started        1\n", out)
}

func TestFormatEvent(t *testing.T) {
	ev := &journal.Event{
		ID:        42,
		Timestamp: 1739781001,
		EventType: journal.EventCompletionSucceeded,
		Payload:   sql.NullString{String: `{"latency_ms":1820,"user_id":7,"model":"gpt-4o"}`, Valid: true},
	}

	line := formatEvent(ev, false)
	assert.Equal(t, "[42] 2025-02-17 08:30:01  completion.succeeded  latency_ms=1820  model=gpt-4o  user_id=7", line)
	assert.Equal(t, "[42] 2025-02-17 08:30:01  completion.succeeded", formatEvent(ev, true))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "12", formatValue(float64(12)))
	assert.Equal(t, "1.5", formatValue(1.5))
	assert.Equal(t, "true", formatValue(true))
	long := strings.Repeat("x", 100)
	assert.Equal(t, `"`+strings.Repeat("x", 80)+`..."`, formatValue(long))
}
