package model

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the completion API answered without any
// usable content.
var ErrEmptyResponse = errors.New("empty model response")

// Message is a provider-agnostic chat message.
type Message struct {
	Role    string
	Content string
}

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the completion API abstraction used by the relay.
type Provider interface {
	ChatCompletion(ctx context.Context, messages []Message) (CompletionResponse, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, messages []Message) (CompletionResponse, error)

func (f ProviderFunc) ChatCompletion(ctx context.Context, messages []Message) (CompletionResponse, error) {
	return f(ctx, messages)
}
