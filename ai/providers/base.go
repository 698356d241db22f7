// Package providers holds the pieces shared by every AI provider client.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/telemetry"
)

// BaseClient provides common functionality for all AI providers
type BaseClient struct {
	// HTTP client handed to provider SDKs; requests carry trace context
	HTTPClient *http.Client

	Logger core.Logger

	// Provider name used in logs, spans and metrics
	Provider string

	DefaultModel        string
	DefaultTemperature  float32
	DefaultMaxTokens    int
	DefaultSystemPrompt string
}

// NewBaseClient creates a new base client with defaults
func NewBaseClient(provider string, timeout time.Duration, logger core.Logger) *BaseClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &BaseClient{
		HTTPClient:       telemetry.NewTracedHTTPClient(timeout),
		Logger:           logger,
		Provider:         provider,
		DefaultMaxTokens: 1024,
	}
}

// ApplyDefaults returns a copy of options with unset values filled from the client defaults.
// The caller's options are never modified.
func (b *BaseClient) ApplyDefaults(options *core.AIOptions) *core.AIOptions {
	resolved := core.AIOptions{}
	if options != nil {
		resolved = *options
	}

	if resolved.Model == "" {
		resolved.Model = b.DefaultModel
	}
	if resolved.Temperature == 0 {
		resolved.Temperature = b.DefaultTemperature
	}
	if resolved.MaxTokens == 0 {
		resolved.MaxTokens = b.DefaultMaxTokens
	}
	if resolved.SystemPrompt == "" {
		resolved.SystemPrompt = b.DefaultSystemPrompt
	}

	return &resolved
}

// StartRequest opens the span for one generation call and logs the request.
func (b *BaseClient) StartRequest(ctx context.Context, model, prompt string) (context.Context, trace.Span) {
	ctx, span := telemetry.StartSpan(ctx, "ai.generate_response",
		attribute.String("ai.provider", b.Provider),
		attribute.String("ai.model", model),
		attribute.Int("ai.prompt_length", len(prompt)),
	)

	b.Logger.Debug("AI request initiated", map[string]interface{}{
		"operation":     "ai_request",
		"provider":      b.Provider,
		"model":         model,
		"prompt_length": len(prompt),
	})
	return ctx, span
}

// FinishRequest records the outcome of a generation call on the span, metrics and log.
func (b *BaseClient) FinishRequest(span trace.Span, resp *core.AIResponse, start time.Time, err error) {
	defer span.End()

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	telemetry.Counter(telemetry.MetricAIRequests, "provider", b.Provider, "status", status)
	telemetry.Duration(telemetry.MetricAIRequestLatency, start, "provider", b.Provider)

	if err != nil {
		b.LogError(err)
		return
	}

	span.SetAttributes(
		attribute.Int("ai.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("ai.completion_tokens", resp.Usage.CompletionTokens),
		attribute.Int("ai.response_length", len(resp.Content)),
	)
	b.Logger.Info("AI response received", map[string]interface{}{
		"operation":         "ai_response",
		"provider":          b.Provider,
		"model":             resp.Model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
		"duration_ms":       time.Since(start).Milliseconds(),
	})
}

// LogError logs an error with provider context
func (b *BaseClient) LogError(err error) {
	b.Logger.Error("Provider error", map[string]interface{}{
		"operation":  "ai_request_error",
		"provider":   b.Provider,
		"error":      err.Error(),
		"error_type": fmt.Sprintf("%T", err),
	})
}

// WrapError marks a provider failure so callers can test it with errors.Is.
// Deadline and cancellation errors pass through unchanged.
func (b *BaseClient) WrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &core.FrameworkError{
		Op:      b.Provider + ".GenerateResponse",
		Kind:    "ai",
		Message: fmt.Sprintf("%s request failed: %v", b.Provider, err),
		Err:     fmt.Errorf("%w: %v", core.ErrProviderFailed, err),
	}
}

// EmptyResponseError reports a response without text content.
func (b *BaseClient) EmptyResponseError() error {
	return &core.FrameworkError{
		Op:   b.Provider + ".GenerateResponse",
		Kind: "ai",
		Err:  core.ErrEmptyResponse,
	}
}
