package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicClient implements Backend using the Anthropic Messages API. It
// only produces text; images still come from an ImageBackend.
type AnthropicClient struct {
	client    anthropic.Client
	modelName string
}

// AnthropicClientConfig configures the Anthropic client
type AnthropicClientConfig struct {
	APIKey     string
	BaseURL    string // Optional, defaults to the public API
	ModelName  string
	Timeout    time.Duration // Optional, per request
	MaxRetries int           // SDK retries on 429 and 5xx
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(cfg AnthropicClientConfig) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		modelName: cfg.ModelName,
	}
}

// Infer sends one non-streaming message. The Messages API has no JSON mode,
// so ResponseFormat is carried by the prompt alone.
func (c *AnthropicClient) Infer(ctx context.Context, req *InferenceRequest) (*InferenceResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelName),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text in response")
	}

	return &InferenceResponse{
		Text:         text.String(),
		FinishReason: string(msg.StopReason),
		TokensUsed:   int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}
