package anthropic

import (
	"os"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/itsneelabh/querysynth/ai"
	"github.com/itsneelabh/querysynth/core"
)

func init() {
	ai.MustRegister(&Factory{})
}

// Factory creates Anthropic AI clients
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return "anthropic"
}

// Description returns provider description
func (f *Factory) Description() string {
	return "Anthropic Claude models with native Messages API"
}

// Priority returns provider priority
func (f *Factory) Priority() int {
	return 80 // Lower than OpenAI but higher than Bedrock
}

// Create creates a new Anthropic client
func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("ANTHROPIC_BASE_URL")
	}

	logger := core.ComponentLogger(config.Logger, "querysynth/ai")
	logger.Info("Anthropic provider initialized", map[string]interface{}{
		"operation":   "ai_provider_init",
		"provider":    "anthropic",
		"has_api_key": apiKey != "",
		"timeout":     config.Timeout.String(),
		"max_retries": config.MaxRetries,
		"model":       config.Model,
	})

	extra := make([]option.RequestOption, 0, len(config.Headers))
	for k, v := range config.Headers {
		extra = append(extra, option.WithHeader(k, v))
	}

	client := NewClient(apiKey, baseURL, config.Timeout, config.MaxRetries, logger, extra...)

	if config.Model != "" {
		client.DefaultModel = config.Model
	}
	if config.Temperature > 0 {
		client.DefaultTemperature = config.Temperature
	}
	if config.MaxTokens > 0 {
		client.DefaultMaxTokens = config.MaxTokens
	}

	return client
}

// DetectEnvironment checks if Anthropic is configured and returns priority
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return f.Priority(), true
	}
	return 0, false
}
