// Package bedrock provides the AWS Bedrock provider over the Converse API,
// which gives one request shape for every hosted model family.
package bedrock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/itsneelabh/querysynth/ai/providers"
	"github.com/itsneelabh/querysynth/core"
)

// DefaultModel is a Claude model hosted on Bedrock
const DefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

// converseAPI is the subset of the Bedrock runtime client used here
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements core.AIClient for AWS Bedrock
type Client struct {
	*providers.BaseClient
	api    converseAPI
	region string
}

// NewClient creates a new AWS Bedrock client
func NewClient(cfg aws.Config, region string, timeout time.Duration, logger core.Logger, optFns ...func(*bedrockruntime.Options)) *Client {
	base := providers.NewBaseClient("bedrock", timeout, logger)
	base.DefaultModel = DefaultModel

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = base.HTTPClient
	}

	return &Client{
		BaseClient: base,
		api:        bedrockruntime.NewFromConfig(cfg, optFns...),
		region:     region,
	}
}

// GenerateResponse generates a response using AWS Bedrock's Converse API
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (result *core.AIResponse, err error) {
	options = c.ApplyDefaults(options)
	start := time.Now()
	ctx, span := c.StartRequest(ctx, options.Model, prompt)
	defer func() { c.FinishRequest(span, result, start, err) }()

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(options.Model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(options.Temperature),
		},
	}
	if options.MaxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(options.MaxTokens))
	}
	if options.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: options.SystemPrompt},
		}
	}

	output, err := c.api.Converse(ctx, input)
	if err != nil {
		return nil, c.WrapError(err)
	}

	message, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, c.WrapError(fmt.Errorf("unexpected output type %T from Bedrock", output.Output))
	}

	var text strings.Builder
	for _, block := range message.Value.Content {
		if b, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(b.Value)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, c.EmptyResponseError()
	}

	result = &core.AIResponse{
		Content: text.String(),
		Model:   options.Model,
	}
	if output.Usage != nil {
		result.Usage = core.TokenUsage{
			PromptTokens:     int(aws.ToInt32(output.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}
	return result, nil
}

// CreateAWSConfig loads AWS configuration for the region. An explicit
// credentials provider replaces the default chain.
func CreateAWSConfig(ctx context.Context, region string, credentials ...aws.CredentialsProvider) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if len(credentials) > 0 && credentials[0] != nil {
		opts = append(opts, config.WithCredentialsProvider(credentials[0]))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}
