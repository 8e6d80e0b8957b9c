package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupiduntilnot/chatrelay/internal/anthropic"
	"github.com/stupiduntilnot/chatrelay/internal/config"
	"github.com/stupiduntilnot/chatrelay/internal/control"
	"github.com/stupiduntilnot/chatrelay/internal/dummy"
	"github.com/stupiduntilnot/chatrelay/internal/history"
	"github.com/stupiduntilnot/chatrelay/internal/journal"
	"github.com/stupiduntilnot/chatrelay/internal/model"
	"github.com/stupiduntilnot/chatrelay/internal/openai"
	"github.com/stupiduntilnot/chatrelay/internal/relay"
)

func dummyConfig(script string) config.Config {
	return config.Config{
		ModelProvider:  config.ProviderDummy,
		Model:          "dummy",
		DummyScript:    script,
		RequestTimeout: time.Second,
	}
}

func TestNewModelProvider(t *testing.T) {
	p, err := newModelProvider(config.Config{ModelProvider: config.ProviderOpenAI, OpenAIAPIKey: "sk", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	require.IsType(t, &openai.Client{}, p)
	assert.Equal(t, "gpt-4o-mini", p.(*openai.Client).Model())

	p, err = newModelProvider(config.Config{ModelProvider: config.ProviderAnthropic, AnthropicAPIKey: "ak", AnthropicMaxTokens: 256})
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Client{}, p)

	p, err = newModelProvider(dummyConfig("ok"))
	require.NoError(t, err)
	assert.IsType(t, &dummy.Provider{}, p)

	_, err = newModelProvider(dummyConfig("bogus"))
	assert.Error(t, err)

	_, err = newModelProvider(config.Config{ModelProvider: "llama"})
	assert.Error(t, err)
}

func TestNewBreaker(t *testing.T) {
	assert.Nil(t, newBreaker(config.Config{BreakerThreshold: 0}))

	b := newBreaker(config.Config{BreakerThreshold: 3, BreakerCooldown: time.Minute})
	require.NotNil(t, b)
	assert.Equal(t, 3, b.Threshold)
	assert.Equal(t, control.CircuitClosed, b.State())
}

func TestModelName(t *testing.T) {
	p, err := newModelProvider(config.Config{ModelProvider: config.ProviderAnthropic, AnthropicAPIKey: "ak"})
	require.NoError(t, err)
	assert.Equal(t, anthropic.DefaultModel, modelName(p, ""))

	p, err = newModelProvider(config.Config{ModelProvider: config.ProviderOpenAI, OpenAIAPIKey: "sk"})
	require.NoError(t, err)
	assert.Equal(t, openai.DefaultModel, modelName(p, ""))

	assert.Equal(t, "fallback", modelName(model.ProviderFunc(nil), "fallback"))
}

func TestBuildRelay_JournalRecordsExchange(t *testing.T) {
	cfg := dummyConfig("echo")
	cfg.Model = "dummy-7"
	cfg.JournalPath = filepath.Join(t.TempDir(), "state", "journal.db")

	r, closeJournal, err := buildRelay(cfg, history.NewStore(), "console", zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "Hello", r.HandleMessage(context.Background(), 9, "Hello"))
	require.NoError(t, closeJournal())

	j, err := journal.Open(cfg.JournalPath)
	require.NoError(t, err)
	defer j.Close()

	counts, err := j.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		journal.EventProcessStarted:      1,
		journal.EventMessageReceived:     1,
		journal.EventCompletionSucceeded: 1,
	}, counts)

	rootID, err := j.LatestRoot("console")
	require.NoError(t, err)
	tree, err := j.Tree(rootID)
	require.NoError(t, err)
	assert.Contains(t, tree.Payload.String, `"model":"dummy-7"`)
	require.Len(t, tree.Children, 1)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Contains(t, tree.Children[0].Children[0].Payload.String, `"model":"dummy-7"`)
}

func TestBuildRelay_BreakerOpensOnRepeatedFailures(t *testing.T) {
	cfg := dummyConfig("err:provider_api")
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = time.Hour

	store := history.NewStore()
	r, closeJournal, err := buildRelay(cfg, store, "console", zerolog.Nop())
	require.NoError(t, err)
	defer closeJournal()

	for i := 0; i < 4; i++ {
		assert.Equal(t, relay.FallbackReply, r.HandleMessage(context.Background(), 1, "Hi"))
	}
	// Each failed exchange leaves only its user turn behind.
	turns := store.Get(1)
	require.Len(t, turns, 4)
	for _, turn := range turns {
		assert.Equal(t, history.RoleUser, turn.Role)
	}
}

func TestRunConsole(t *testing.T) {
	store := history.NewStore()
	r, closeJournal, err := buildRelay(dummyConfig("echo"), store, "console", zerolog.Nop())
	require.NoError(t, err)
	defer closeJournal()

	in := strings.NewReader("/start\nHello\n\n   \nHow are you?\n/clear\n")
	var out bytes.Buffer
	require.NoError(t, runConsole(context.Background(), r, 5, in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.True(t, strings.HasPrefix(out.String(), relay.HelpText))
	assert.Equal(t, []string{"Hello", "How are you?", relay.ClearedReply}, lines[len(lines)-3:])
	assert.Empty(t, store.Get(5))
}

func TestRunConsole_StopsOnCanceledContext(t *testing.T) {
	r, closeJournal, err := buildRelay(dummyConfig("echo"), history.NewStore(), "console", zerolog.Nop())
	require.NoError(t, err)
	defer closeJournal()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	require.NoError(t, runConsole(ctx, r, 5, strings.NewReader("Hello\n"), &out))
	assert.Empty(t, out.String())
}

func TestRootCmd_Console(t *testing.T) {
	t.Setenv("RELAY_MODEL_PROVIDER", "dummy")
	t.Setenv("RELAY_DUMMY_SCRIPT", "msg:pong")
	t.Setenv("RELAY_LOG_FORMAT", "json")
	t.Setenv("RELAY_JOURNAL_PATH", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("ping\n"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "--log-level", "error", "console", "--user", "77"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "pong\n", out.String())
}

func TestRootCmd_ServeRequiresToken(t *testing.T) {
	t.Setenv("RELAY_MODEL_PROVIDER", "dummy")
	t.Setenv("RELAY_LOG_FORMAT", "json")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", "", "serve"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestRootCmd_Version(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}
