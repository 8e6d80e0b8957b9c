package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stupiduntilnot/chatrelay/internal/history"
	"github.com/stupiduntilnot/chatrelay/internal/journal"
	"github.com/stupiduntilnot/chatrelay/internal/model"
)

const (
	// FallbackReply is the only text a user sees when a completion fails,
	// whatever the cause.
	FallbackReply = "Sorry, I'm having trouble connecting to the AI model right now."
	ClearedReply  = "I've cleared our past conversation history."
	HelpText      = "Hi! I'm a Telegram bot powered by an AI language model. Here are the commands:\n" +
		"/start or /help - Show this help menu\n" +
		"/clear - Clear your conversation history\n\n" +
		"Just type any message to chat with me!"

	DefaultRequestTimeout = 60 * time.Second
)

// Options configures a Relay. The zero value is usable.
type Options struct {
	// SystemPrompt is sent ahead of the history on every call and never stored.
	SystemPrompt string
	// RequestTimeout bounds each completion call. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
	// ModelName is only used for logging and the journal.
	ModelName string
	Journal   journal.Journal
	// ParentEventID links journal events to the process.started event.
	ParentEventID *int64
	Logger        zerolog.Logger
}

// Relay turns one inbound message into one outbound reply using the
// completion provider and the per-user history store.
type Relay struct {
	store    *history.Store
	provider model.Provider
	opts     Options
	logger   zerolog.Logger
}

func New(store *history.Store, provider model.Provider, opts Options) *Relay {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	return &Relay{
		store:    store,
		provider: provider,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "relay").Logger(),
	}
}

// completion is the outcome of one completion call: either a reply or a
// failure, never both.
type completion struct {
	reply   string
	usage   model.CompletionResponse
	failure error
}

func (c completion) ok() bool { return c.failure == nil }

// complete calls the provider under the request timeout. Provider panics are
// reported as failures.
func (r *Relay) complete(ctx context.Context, turns []history.Turn) (res completion) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			res = completion{failure: fmt.Errorf("completion provider panicked: %v", p)}
		}
	}()

	resp, err := r.provider.ChatCompletion(ctx, model.Assemble(r.opts.SystemPrompt, turns))
	if err != nil {
		return completion{failure: err}
	}
	if strings.TrimSpace(resp.Content) == "" {
		return completion{failure: model.ErrEmptyResponse}
	}
	return completion{reply: resp.Content, usage: resp}
}

// HandleMessage appends the user's text to their history, asks the provider
// for a reply and appends that too. On any provider failure only the user
// turn remains and FallbackReply is returned. Exchanges for the same user are
// serialized; different users proceed in parallel.
func (r *Relay) HandleMessage(ctx context.Context, userID int64, text string) string {
	exchangeID := uuid.NewString()
	log := r.logger.With().Int64("user_id", userID).Str("exchange_id", exchangeID).Logger()

	unlock := r.store.Lock(userID)
	defer unlock()

	r.store.Append(userID, history.UserTurn(text))
	turns := r.store.Get(userID)

	log.Info().
		Int("history_len", len(turns)).
		Int("active_users", r.store.Users()).
		Msg("user message received")
	log.Debug().Str("text", text).Msg("user message text")
	receivedID := r.record(log, r.opts.ParentEventID, journal.EventMessageReceived, map[string]any{
		"user_id":     userID,
		"exchange_id": exchangeID,
		"history_len": len(turns),
	})

	started := time.Now()
	res := r.complete(ctx, turns)
	latency := time.Since(started)

	if !res.ok() {
		log.Error().Err(res.failure).Dur("latency", latency).Msg("completion failed")
		r.record(log, receivedID, journal.EventCompletionFailed, map[string]any{
			"user_id":     userID,
			"exchange_id": exchangeID,
			"model":       r.opts.ModelName,
			"latency_ms":  latency.Milliseconds(),
			"error":       truncate(res.failure.Error(), 1000),
		})
		return FallbackReply
	}

	r.store.Append(userID, history.AssistantTurn(res.reply))

	log.Info().
		Dur("latency", latency).
		Int("input_tokens", res.usage.InputTokens).
		Int("output_tokens", res.usage.OutputTokens).
		Msg("reply generated")
	log.Debug().Str("reply", res.reply).Msg("reply text")
	r.record(log, receivedID, journal.EventCompletionSucceeded, map[string]any{
		"user_id":       userID,
		"exchange_id":   exchangeID,
		"model":         r.opts.ModelName,
		"latency_ms":    latency.Milliseconds(),
		"input_tokens":  res.usage.InputTokens,
		"output_tokens": res.usage.OutputTokens,
	})
	return res.reply
}

// ResetHistory clears the user's history. It waits for an in-flight exchange
// of the same user and always succeeds.
func (r *Relay) ResetHistory(ctx context.Context, userID int64) string {
	unlock := r.store.Lock(userID)
	defer unlock()

	cleared := r.store.Len(userID)
	r.store.Clear(userID)

	log := r.logger.With().Int64("user_id", userID).Logger()
	log.Info().Int("cleared_turns", cleared).Msg("history cleared")
	r.record(log, r.opts.ParentEventID, journal.EventHistoryCleared, map[string]any{
		"user_id":       userID,
		"cleared_turns": cleared,
	})
	return ClearedReply
}

func (r *Relay) Help(ctx context.Context, in Inbound) string {
	return HelpText
}

func (r *Relay) Clear(ctx context.Context, in Inbound) string {
	return r.ResetHistory(ctx, in.UserID)
}

func (r *Relay) Chat(ctx context.Context, in Inbound) string {
	return r.HandleMessage(ctx, in.UserID, in.Text)
}

// record writes a journal event under parentID and returns the new event's
// id, or nil when the event was not stored.
func (r *Relay) record(log zerolog.Logger, parentID *int64, eventType string, payload map[string]any) *int64 {
	id, err := r.opts.Journal.Log(parentID, eventType, payload)
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("journal write failed")
		return parentID
	}
	if id <= 0 {
		return parentID
	}
	return &id
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
