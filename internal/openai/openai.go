package openai

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/stupiduntilnot/chatrelay/internal/model"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
)

// Client is an OpenAI chat completions provider.
type Client struct {
	client sdk.Client
	model  string
}

// NewClient creates an OpenAI client. maxRetries is passed to the SDK, which
// retries connection errors, 408, 409, 429 and 5xx responses.
func NewClient(apiKey, baseURL, modelName string, maxRetries int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if modelName == "" {
		modelName = DefaultModel
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
		model: modelName,
	}, nil
}

// Model returns the model name sent with every request.
func (c *Client) Model() string {
	return c.model
}

// ChatCompletion sends the ordered messages and returns the first choice.
func (c *Client) ChatCompletion(ctx context.Context, messages []model.Message) (model.CompletionResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: convertMessages(messages),
	})
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return model.CompletionResponse{}, fmt.Errorf("openai returned no choices: %w", model.ErrEmptyResponse)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return model.CompletionResponse{}, fmt.Errorf("openai returned empty content: %w", model.ErrEmptyResponse)
	}

	return model.CompletionResponse{
		Content:      content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func convertMessages(messages []model.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case "system":
			out[i] = sdk.SystemMessage(m.Content)
		case "assistant":
			out[i] = sdk.AssistantMessage(m.Content)
		default:
			out[i] = sdk.UserMessage(m.Content)
		}
	}
	return out
}
