package bedrock

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/itsneelabh/querysynth/ai"
	"github.com/itsneelabh/querysynth/core"
)

func init() {
	ai.MustRegister(&Factory{})
}

// Factory creates AWS Bedrock AI clients
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return "bedrock"
}

// Description returns provider description
func (f *Factory) Description() string {
	return "AWS Bedrock unified access to Claude, Llama, Titan and other models"
}

// Priority returns provider priority
func (f *Factory) Priority() int {
	return 60
}

// Create creates a new AWS Bedrock client
func (f *Factory) Create(config *ai.AIConfig) core.AIClient {
	region := config.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	var explicit aws.CredentialsProvider
	if accessKey, secretKey := config.ExtraString("aws_access_key_id"), config.ExtraString("aws_secret_access_key"); accessKey != "" && secretKey != "" {
		explicit = credentials.NewStaticCredentialsProvider(accessKey, secretKey, config.ExtraString("aws_session_token"))
	}

	logger := core.ComponentLogger(config.Logger, "querysynth/ai")

	awsCfg, err := CreateAWSConfig(context.Background(), region, explicit)
	if err != nil {
		// Registration still succeeds; the error surfaces on first use
		logger.Error("Bedrock provider configuration failed", map[string]interface{}{
			"operation": "ai_provider_init",
			"provider":  "bedrock",
			"region":    region,
			"error":     err.Error(),
		})
		return &errorClient{err: err}
	}

	logger.Info("Bedrock provider initialized", map[string]interface{}{
		"operation":            "ai_provider_init",
		"provider":             "bedrock",
		"region":               region,
		"model":                config.Model,
		"explicit_credentials": explicit != nil,
	})

	client := NewClient(awsCfg, region, config.Timeout, logger)

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

// DetectEnvironment checks if AWS credentials are reachable
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("AWS_ACCESS_KEY_ID") != "" && os.Getenv("AWS_SECRET_ACCESS_KEY") != "" {
		return f.Priority(), true
	}
	if os.Getenv("AWS_PROFILE") != "" {
		return f.Priority(), true
	}
	// Higher priority when running on AWS with a task or function role
	if os.Getenv("AWS_EXECUTION_ENV") != "" || os.Getenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI") != "" {
		return f.Priority() + 10, true
	}
	if home, err := os.UserHomeDir(); err == nil {
		if _, err := os.Stat(filepath.Join(home, ".aws", "credentials")); err == nil {
			return f.Priority(), true
		}
	}
	return 0, false
}

// errorClient is returned when AWS configuration fails
type errorClient struct {
	err error
}

func (e *errorClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	return nil, &core.FrameworkError{Op: "bedrock.GenerateResponse", Kind: "config", Err: e.err}
}
