package relay

import (
	"context"
	"strings"
)

// Inbound is one message delivered by a transport.
type Inbound struct {
	UserID int64
	ChatID int64
	Text   string
}

// Handler has one entry point per inbound event kind. Every entry point
// returns the reply text; none of them fail.
type Handler interface {
	Help(ctx context.Context, in Inbound) string
	Clear(ctx context.Context, in Inbound) string
	Chat(ctx context.Context, in Inbound) string
}

// Kind is the event kind an inbound text maps to.
type Kind int

const (
	KindChat Kind = iota
	KindHelp
	KindClear
)

func (k Kind) String() string {
	switch k {
	case KindHelp:
		return "help"
	case KindClear:
		return "clear"
	default:
		return "chat"
	}
}

// Route classifies text. "/start" and "/help" are help, "/clear" is clear,
// optionally followed by "@botname" or arguments. Anything else, including
// unknown commands, is chat.
func Route(text string) Kind {
	switch commandName(text) {
	case "start", "help":
		return KindHelp
	case "clear":
		return KindClear
	default:
		return KindChat
	}
}

func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name
}

// Dispatch routes the inbound text and invokes the matching entry point.
func Dispatch(ctx context.Context, h Handler, in Inbound) string {
	switch Route(in.Text) {
	case KindHelp:
		return h.Help(ctx, in)
	case KindClear:
		return h.Clear(ctx, in)
	default:
		return h.Chat(ctx, in)
	}
}
