package model

import "github.com/stupiduntilnot/chatrelay/internal/history"

// Assemble builds the message list sent to a provider: an optional system
// prompt followed by the history in conversation order.
func Assemble(system string, turns []history.Turn) []Message {
	messages := make([]Message, 0, 1+len(turns))
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	for _, t := range turns {
		messages = append(messages, Message{Role: string(t.Role), Content: t.Content})
	}
	return messages
}
