package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/resilience"
)

const defaultSystemPrompt = `You are the planning component of a SQL query synthesis agent.
You work against a relational database you can only inspect through the actions offered to you.
Never invent table or column names; use the schema information you are given.`

// LLMService implements Service on top of a core.AIClient.
type LLMService struct {
	client  core.AIClient
	breaker *resilience.CircuitBreaker
	logger  core.Logger
	options core.AIOptions
}

// Option configures an LLMService
type Option func(*LLMService)

// WithCircuitBreaker routes every provider call through cb, so tasks fail
// fast while the provider is down.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *LLMService) {
		s.breaker = cb
	}
}

// WithModel overrides the provider's default model
func WithModel(model string) Option {
	return func(s *LLMService) {
		s.options.Model = model
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(temperature float32) Option {
	return func(s *LLMService) {
		s.options.Temperature = temperature
	}
}

// WithMaxTokens bounds each reply
func WithMaxTokens(tokens int) Option {
	return func(s *LLMService) {
		s.options.MaxTokens = tokens
	}
}

// WithSystemPrompt replaces the default system prompt
func WithSystemPrompt(prompt string) Option {
	return func(s *LLMService) {
		s.options.SystemPrompt = prompt
	}
}

// NewLLMService creates a reasoning service over client
func NewLLMService(client core.AIClient, opts ...Option) *LLMService {
	s := &LLMService{
		client: client,
		logger: &core.NoOpLogger{},
		options: core.AIOptions{
			SystemPrompt: defaultSystemPrompt,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger sets the logger
func (s *LLMService) SetLogger(logger core.Logger) {
	if logger == nil {
		s.logger = &core.NoOpLogger{}
		return
	}
	s.logger = core.ComponentLogger(logger, "querysynth/reasoning")
}

// Decide asks the model to pick one of actions and parses its JSON reply
func (s *LLMService) Decide(ctx context.Context, prompt string, actions []string) (*Decision, error) {
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n## RESPONSE FORMAT\n")
	sb.WriteString("Choose exactly one action from: ")
	sb.WriteString(strings.Join(actions, ", "))
	sb.WriteString("\nReply with a single JSON object and nothing else:\n")
	sb.WriteString(`{"action": "<action name>", "args": {}, "rationale": "<one sentence>"}`)
	sb.WriteString("\n")

	content, err := s.call(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	decision, err := parseDecision(content)
	if err != nil {
		s.logger.Warn("Unreadable decision from reasoning service", map[string]interface{}{
			"operation":      "reasoning_decide",
			"error":          err.Error(),
			"response_chars": len(content),
		})
		return nil, err
	}

	s.logger.Debug("Reasoning service decided", map[string]interface{}{
		"operation": "reasoning_decide",
		"action":    decision.Action,
		"args":      len(decision.Args),
	})
	return decision, nil
}

// Generate returns the model's free-text reply, trimmed
func (s *LLMService) Generate(ctx context.Context, prompt string) (string, error) {
	content, err := s.call(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (s *LLMService) call(ctx context.Context, prompt string) (string, error) {
	var content string
	invoke := func() error {
		opts := s.options
		resp, err := s.client.GenerateResponse(ctx, prompt, &opts)
		if err != nil {
			return err
		}
		if strings.TrimSpace(resp.Content) == "" {
			return core.ErrEmptyResponse
		}
		content = resp.Content
		return nil
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, invoke)
	} else {
		err = invoke()
	}
	if err != nil {
		s.logger.Error("Reasoning service call failed", map[string]interface{}{
			"operation":  "reasoning_call",
			"error":      err.Error(),
			"error_type": fmt.Sprintf("%T", err),
		})
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return content, nil
}

// parseDecision reads the first JSON object in content as a Decision.
// "action_args" and "arguments" are accepted as aliases of "args".
func parseDecision(content string) (*Decision, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedDecision)
	}

	var wire struct {
		Action     string                 `json:"action"`
		Args       map[string]interface{} `json:"args"`
		ActionArgs map[string]interface{} `json:"action_args"`
		Arguments  map[string]interface{} `json:"arguments"`
		Rationale  string                 `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	action := strings.ToLower(strings.TrimSpace(wire.Action))
	if action == "" {
		return nil, fmt.Errorf("%w: missing action", ErrMalformedDecision)
	}

	args := wire.Args
	if args == nil {
		args = wire.ActionArgs
	}
	if args == nil {
		args = wire.Arguments
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	return &Decision{Action: action, Args: args, Rationale: wire.Rationale}, nil
}

// extractJSON returns the first balanced JSON object in text, skipping
// markdown fences and surrounding prose. Returns "" when there is none.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	end := findJSONEnd(text, start)
	if end == -1 {
		return ""
	}
	return text[start:end]
}

// findJSONEnd returns the index just past the object opened at start, or -1.
func findJSONEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
