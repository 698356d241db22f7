// Package anthropic provides the Anthropic Messages API provider.
package anthropic

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/itsneelabh/querysynth/ai/providers"
	"github.com/itsneelabh/querysynth/core"
)

// DefaultModel is used when neither config nor options name a model
const DefaultModel = "claude-sonnet-4-5"

// Client implements core.AIClient for Anthropic
type Client struct {
	*providers.BaseClient
	api anthropic.Client
}

// NewClient creates a new Anthropic client
func NewClient(apiKey, baseURL string, timeout time.Duration, maxRetries int, logger core.Logger, extra ...option.RequestOption) *Client {
	base := providers.NewBaseClient("anthropic", timeout, logger)
	base.DefaultModel = DefaultModel

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(base.HTTPClient),
		option.WithMaxRetries(maxRetries),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	return &Client{
		BaseClient: base,
		api:        anthropic.NewClient(opts...),
	}
}

// GenerateResponse generates a response using the Messages API
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (result *core.AIResponse, err error) {
	options = c.ApplyDefaults(options)
	start := time.Now()
	ctx, span := c.StartRequest(ctx, options.Model, prompt)
	defer func() { c.FinishRequest(span, result, start, err) }()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(options.Model),
		MaxTokens: int64(options.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(float64(options.Temperature)),
	}
	if options.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: options.SystemPrompt}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, c.WrapError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, c.EmptyResponseError()
	}

	model := string(msg.Model)
	if model == "" {
		model = options.Model
	}

	return &core.AIResponse{
		Content: text.String(),
		Model:   model,
		Usage: core.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}
