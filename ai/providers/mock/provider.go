// Package mock provides a scripted AI provider for tests and offline runs.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/itsneelabh/querysynth/ai"
	"github.com/itsneelabh/querysynth/core"
)

// ErrExhausted is returned once every scripted response has been consumed
var ErrExhausted = errors.New("no more mock responses")

func init() {
	ai.MustRegister(&Factory{})
}

// Factory creates mock AI clients
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return "mock"
}

// Description returns provider description
func (f *Factory) Description() string {
	return "Scripted provider for tests and offline runs"
}

// Priority returns provider priority
func (f *Factory) Priority() int {
	return 1
}

// Create creates a new mock client. Responses may be scripted through
// config.Extra["responses"] as a []string.
func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	client := NewClient(config)
	if config != nil {
		if scripted, ok := config.Extra["responses"].([]string); ok {
			client.SetResponses(scripted...)
		}
	}
	return client
}

// DetectEnvironment reports the mock as unavailable so it is never auto-selected
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	return 0, false
}

// Client implements core.AIClient with scripted responses.
// It is safe for concurrent use.
type Client struct {
	mu sync.Mutex

	Config        *ai.AIConfig
	Responses     []string
	ResponseIndex int
	Error         error
	CallCount     int
	LastPrompt    string
	LastOptions   *core.AIOptions
	Prompts       []string

	// ResponseFunc, when set, replaces the scripted list
	ResponseFunc func(prompt string) (string, error)

	// Delay simulates provider latency and honors context deadlines
	Delay time.Duration
}

// NewClient creates a new mock client
func NewClient(config *ai.AIConfig) *Client {
	return &Client{
		Config:    config,
		Responses: []string{"Mock response"},
	}
}

// GenerateResponse returns the next scripted response
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	c.mu.Lock()
	c.CallCount++
	c.LastPrompt = prompt
	c.LastOptions = options
	c.Prompts = append(c.Prompts, prompt)
	delay := c.Delay
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response, err := c.next(prompt)
	if err != nil {
		return nil, err
	}

	model := "mock-model"
	if options != nil && options.Model != "" {
		model = options.Model
	} else if c.Config != nil && c.Config.Model != "" {
		model = c.Config.Model
	}

	return &core.AIResponse{
		Content: response,
		Model:   model,
		Usage: core.TokenUsage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(response) / 4,
			TotalTokens:      (len(prompt) + len(response)) / 4,
		},
	}, nil
}

func (c *Client) next(prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Error != nil {
		return "", c.Error
	}
	if c.ResponseFunc != nil {
		return c.ResponseFunc(prompt)
	}
	if c.ResponseIndex >= len(c.Responses) {
		return "", ErrExhausted
	}
	response := c.Responses[c.ResponseIndex]
	c.ResponseIndex++
	return response, nil
}

// SetResponses sets the responses to return
func (c *Client) SetResponses(responses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Responses = responses
	c.ResponseIndex = 0
}

// SetError sets an error to return
func (c *Client) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Error = err
}

// Calls returns the number of calls made so far
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCount
}

// Reset resets the mock client
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResponseIndex = 0
	c.CallCount = 0
	c.LastPrompt = ""
	c.LastOptions = nil
	c.Prompts = nil
	c.Error = nil
}
