package ai

import (
	"fmt"
	"time"

	"github.com/itsneelabh/querysynth/core"
)

// NewClient creates an AI client using registered providers
func NewClient(opts ...AIOption) (core.AIClient, error) {
	config := &AIConfig{
		Provider:   string(ProviderAuto),
		MaxRetries: 2,
		Timeout:    60 * time.Second,
		MaxTokens:  1024,
	}

	for _, opt := range opts {
		opt(config)
	}

	config.Logger = core.ComponentLogger(config.Logger, "querysynth/ai")
	config.Logger.Info("Starting AI client creation", map[string]interface{}{
		"operation":        "ai_client_creation",
		"provider_setting": config.Provider,
		"auto_detect":      config.Provider == string(ProviderAuto),
	})

	if config.Provider == "" || config.Provider == string(ProviderAuto) {
		provider, err := detectBestProvider(config.Logger)
		if err != nil {
			return nil, fmt.Errorf("no AI provider available: %w", err)
		}
		config.Provider = provider
	}

	factory, exists := GetProvider(config.Provider)
	if !exists {
		config.Logger.Error("AI provider not registered", map[string]interface{}{
			"operation":           "ai_provider_lookup",
			"requested_provider":  config.Provider,
			"available_providers": ListProviders(),
		})
		return nil, &core.FrameworkError{
			Op:      "ai.NewClient",
			Kind:    "config",
			ID:      config.Provider,
			Message: fmt.Sprintf("provider '%s' not registered. Import _ \"github.com/itsneelabh/querysynth/ai/providers/%s\"", config.Provider, config.Provider),
			Err:     core.ErrProviderNotFound,
		}
	}

	client := factory.Create(config)
	config.Logger.Info("AI client created successfully", map[string]interface{}{
		"operation":   "ai_client_creation",
		"provider":    config.Provider,
		"model":       config.Model,
		"client_type": fmt.Sprintf("%T", client),
	})

	return client, nil
}

// MustNewClient creates a new AI client and panics on error
func MustNewClient(opts ...AIOption) core.AIClient {
	client, err := NewClient(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create AI client: %v", err))
	}
	return client
}

// NewClientFromConfig builds a client from the application configuration.
// The reasoning timeout bounds each provider HTTP request.
func NewClientFromConfig(cfg core.AIConfig, timeout time.Duration, logger core.Logger) (core.AIClient, error) {
	opts := []AIOption{
		WithProvider(firstNonEmpty(cfg.Provider, string(ProviderAuto))),
		WithTimeout(timeout),
		WithTemperature(cfg.Temperature),
		WithLogger(logger),
	}
	if cfg.APIKey != "" {
		opts = append(opts, WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}
	if cfg.Region != "" {
		opts = append(opts, WithRegion(cfg.Region))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, WithMaxTokens(cfg.MaxTokens))
	}
	return NewClient(opts...)
}
