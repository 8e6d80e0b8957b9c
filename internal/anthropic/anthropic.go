package anthropic

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stupiduntilnot/chatrelay/internal/model"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 1024
)

// Client is an Anthropic messages API provider.
type Client struct {
	client    sdk.Client
	model     sdk.Model
	maxTokens int64
}

// NewClient creates an Anthropic client.
func NewClient(apiKey, baseURL, modelName string, maxTokens, maxRetries int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		client: sdk.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(maxRetries),
		),
		model:     sdk.Model(modelName),
		maxTokens: int64(maxTokens),
	}, nil
}

// Model returns the model name sent with every request.
func (c *Client) Model() string {
	return string(c.model)
}

// ChatCompletion sends the conversation and joins the text blocks of the reply.
// System messages are moved to the request's system parameter.
func (c *Client) ChatCompletion(ctx context.Context, messages []model.Message) (model.CompletionResponse, error) {
	converted, system := convertMessages(messages)
	params := sdk.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  converted,
	}
	if len(system) > 0 {
		params.System = system
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("anthropic request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := b.String()
	if strings.TrimSpace(content) == "" {
		return model.CompletionResponse{}, fmt.Errorf("anthropic returned no text: %w", model.ErrEmptyResponse)
	}

	return model.CompletionResponse{
		Content:      content,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func convertMessages(messages []model.Message) ([]sdk.MessageParam, []sdk.TextBlockParam) {
	var system []sdk.TextBlockParam
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case "assistant":
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return out, system
}
