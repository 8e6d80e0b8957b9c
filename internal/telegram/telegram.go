// Package telegram connects the relay to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"unicode/utf16"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/stupiduntilnot/chatrelay/internal/relay"
)

// MaxMessageLength is the longest text Telegram accepts in one message,
// counted in UTF-16 code units.
const MaxMessageLength = 4096

// Sender delivers outbound messages. *bot.Bot satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Options configures the Telegram transport.
type Options struct {
	Token string
	// ServerURL overrides the Bot API endpoint; empty uses the public one.
	ServerURL string
	Logger    zerolog.Logger
}

// Bot long-polls Telegram and hands every text message to a relay.Handler.
// Updates are taken off the poller in arrival order and queued per user, so
// one user's messages are relayed in the order they were sent while different
// users are served concurrently.
type Bot struct {
	api     *bot.Bot
	sender  Sender
	handler relay.Handler
	queue   *userQueue
	logger  zerolog.Logger
}

// New creates the bot client. It does not contact Telegram until Start.
func New(handler relay.Handler, opts Options) (*Bot, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	b := &Bot{
		handler: handler,
		queue:   newUserQueue(),
		logger:  opts.Logger.With().Str("component", "telegram").Logger(),
	}

	botOpts := []bot.Option{
		bot.WithDefaultHandler(b.onUpdate),
		bot.WithErrorsHandler(func(err error) {
			b.logger.Error().Err(err).Msg("telegram polling error")
		}),
		bot.WithSkipGetMe(),
		// onUpdate only enqueues; running it inline on one worker keeps
		// arrival order
		bot.WithNotAsyncHandlers(),
		bot.WithWorkers(1),
	}
	if opts.ServerURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(opts.ServerURL))
	}

	api, err := bot.New(opts.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b.api = api
	b.sender = api
	return b, nil
}

// Start polls for updates until ctx is canceled, then waits for queued
// messages to finish.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info().Msg("telegram polling started")
	b.api.Start(ctx)
	b.queue.wait()
	b.logger.Info().Msg("telegram polling stopped")
}

func (b *Bot) onUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	in, ok := inbound(update)
	if !ok {
		logIgnored(b.logger, update)
		return
	}
	b.queue.push(in.UserID, func() {
		deliver(ctx, b.sender, b.handler, in, b.logger)
	})
}

// HandleUpdate relays one update synchronously. Updates without a text
// message or sender are ignored.
func HandleUpdate(ctx context.Context, s Sender, h relay.Handler, update *models.Update, logger zerolog.Logger) {
	in, ok := inbound(update)
	if !ok {
		logIgnored(logger, update)
		return
	}
	deliver(ctx, s, h, in, logger)
}

func logIgnored(logger zerolog.Logger, update *models.Update) {
	if update != nil {
		logger.Debug().Int64("update_id", update.ID).Msg("ignoring non-text update")
	}
}

// deliver dispatches in and sends the reply. If the reply cannot be sent the
// fallback text is tried once so the user is not left without an answer.
func deliver(ctx context.Context, s Sender, h relay.Handler, in relay.Inbound, logger zerolog.Logger) {
	reply := relay.Dispatch(ctx, h, in)
	log := logger.With().Int64("user_id", in.UserID).Int64("chat_id", in.ChatID).Logger()

	err := send(ctx, s, in.ChatID, reply)
	if err == nil {
		return
	}
	log.Error().Err(err).Msg("failed to send reply")
	if reply == relay.FallbackReply {
		return
	}
	if err := send(ctx, s, in.ChatID, relay.FallbackReply); err != nil {
		log.Error().Err(err).Msg("failed to send fallback reply")
	}
}

func send(ctx context.Context, s Sender, chatID int64, text string) error {
	_, err := s.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   truncate(text, MaxMessageLength),
	})
	return err
}

func inbound(update *models.Update) (relay.Inbound, bool) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return relay.Inbound{}, false
	}
	msg := update.Message
	if msg.Text == "" {
		return relay.Inbound{}, false
	}
	return relay.Inbound{
		UserID: msg.From.ID,
		ChatID: msg.Chat.ID,
		Text:   msg.Text,
	}, true
}

// truncate cuts s to at most maxUnits UTF-16 code units without splitting a
// surrogate pair.
func truncate(s string, maxUnits int) string {
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > maxUnits {
			return s[:i]
		}
		units += n
	}
	return s
}
