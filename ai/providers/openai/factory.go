package openai

import (
	"os"

	"github.com/openai/openai-go/option"

	"github.com/itsneelabh/querysynth/ai"
	"github.com/itsneelabh/querysynth/core"
)

func init() {
	ai.MustRegister(&Factory{})
}

// Factory creates OpenAI clients
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return "openai"
}

// Description returns provider description
func (f *Factory) Description() string {
	return "OpenAI chat completions and OpenAI-compatible endpoints"
}

// Priority returns provider priority
func (f *Factory) Priority() int {
	return 100
}

// Create creates a new OpenAI client
func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	logger := core.ComponentLogger(config.Logger, "querysynth/ai")
	logger.Info("OpenAI provider initialized", map[string]interface{}{
		"operation":   "ai_provider_init",
		"provider":    "openai",
		"base_url":    firstNonEmpty(baseURL, DefaultBaseURL),
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

// DetectEnvironment checks if OpenAI is configured and returns priority
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return f.Priority(), true
	}
	return 0, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
