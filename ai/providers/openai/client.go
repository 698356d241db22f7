// Package openai provides the OpenAI chat completions provider. Any
// OpenAI-compatible endpoint works through BaseURL.
package openai

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/itsneelabh/querysynth/ai/providers"
	"github.com/itsneelabh/querysynth/core"
)

const (
	// DefaultModel is used when neither config nor options name a model
	DefaultModel = "gpt-4o-mini"
	// DefaultBaseURL is the public OpenAI endpoint
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Client implements core.AIClient for OpenAI
type Client struct {
	*providers.BaseClient
	api openai.Client
}

// NewClient creates a new OpenAI client. Extra SDK options are appended
// after the defaults, so they win.
func NewClient(apiKey, baseURL string, timeout time.Duration, maxRetries int, logger core.Logger, extra ...option.RequestOption) *Client {
	base := providers.NewBaseClient("openai", timeout, logger)
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
		api:        openai.NewClient(opts...),
	}
}

// GenerateResponse generates a response using the chat completions API
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (result *core.AIResponse, err error) {
	options = c.ApplyDefaults(options)
	start := time.Now()
	ctx, span := c.StartRequest(ctx, options.Model, prompt)
	defer func() { c.FinishRequest(span, result, start, err) }()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if options.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(options.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    messages,
		Temperature: openai.Float(float64(options.Temperature)),
	}
	if options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.WrapError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, c.EmptyResponseError()
	}

	model := resp.Model
	if model == "" {
		model = options.Model
	}

	return &core.AIResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage: core.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
