package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

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

func newModelProvider(cfg config.Config) (model.Provider, error) {
	switch cfg.ModelProvider {
	case config.ProviderOpenAI:
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.MaxRetries)
	case config.ProviderAnthropic:
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.Model, cfg.AnthropicMaxTokens, cfg.MaxRetries)
	case config.ProviderDummy:
		return dummy.NewProvider(cfg.Model, cfg.DummyScript)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.ModelProvider)
	}
}

func newBreaker(cfg config.Config) *control.CircuitBreaker {
	if cfg.BreakerThreshold <= 0 {
		return nil
	}
	return control.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)
}

func openJournal(cfg config.Config) (journal.Journal, func() error, error) {
	if cfg.JournalPath == "" {
		return journal.Nop{}, func() error { return nil }, nil
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, nil, err
	}
	return j, j.Close, nil
}

// modelName is the model the provider actually sends, after its defaults.
func modelName(p model.Provider, fallback string) string {
	if named, ok := p.(interface{ Model() string }); ok {
		return named.Model()
	}
	return fallback
}

// buildRelay wires provider, breaker and journal around store. The returned
// close func releases the journal.
func buildRelay(cfg config.Config, store *history.Store, role string, logger zerolog.Logger) (*relay.Relay, func() error, error) {
	provider, err := newModelProvider(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init model provider: %w", err)
	}
	name := modelName(provider, cfg.Model)
	provider = control.NewGuard(provider, newBreaker(cfg), logger.With().Str("component", "breaker").Logger())

	j, closeJournal, err := openJournal(cfg)
	if err != nil {
		return nil, nil, err
	}

	var parentID *int64
	id, err := j.Log(nil, journal.EventProcessStarted, map[string]any{
		"role":     role,
		"pid":      os.Getpid(),
		"provider": cfg.ModelProvider,
		"model":    name,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to log process.started")
	} else if id > 0 {
		parentID = &id
	}

	r := relay.New(store, provider, relay.Options{
		SystemPrompt:   cfg.SystemPrompt,
		RequestTimeout: cfg.RequestTimeout,
		ModelName:      name,
		Journal:        j,
		ParentEventID:  parentID,
		Logger:         logger,
	})

	logger.Info().
		Str("role", role).
		Str("provider", cfg.ModelProvider).
		Str("model", name).
		Int("breaker_threshold", cfg.BreakerThreshold).
		Bool("journal", cfg.JournalPath != "").
		Msg("relay ready")
	return r, closeJournal, nil
}
