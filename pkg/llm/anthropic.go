package llm

import (
	"context"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	client      *anthropic.Client
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// NewAnthropicClient creates a client for the Anthropic API.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, apperrors.Configurationf("llm model is required")
	}
	if cfg.APIKey == "" {
		return nil, apperrors.Configurationf("anthropic api key is required")
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	var opts []anthropic.ClientOption
	if endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(endpoint))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &AnthropicClient{
		client:      anthropic.NewClient(cfg.APIKey, opts...),
		endpoint:    endpoint,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		logger:      logger.Named("llm"),
	}, nil
}

// Complete sends one system+user exchange and returns the reply text.
func (c *AnthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	c.logger.Debug("model request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(user)))

	start := time.Now()

	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		System:    system,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &user},
			}},
		},
	}
	if c.temperature > 0 {
		temp := float32(c.temperature)
		req.Temperature = &temp
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		c.logger.Error("model request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.describe(ClassifyError(err))
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			content = *block.Text
			break
		}
	}
	if content == "" {
		return "", c.describe(NewError(ErrorTypeUnknown, "no text content in response", false, nil))
	}

	c.logger.Info("model request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return content, nil
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string { return c.model }

// Endpoint returns the configured base URL, empty for the default.
func (c *AnthropicClient) Endpoint() string { return c.endpoint }

func (c *AnthropicClient) describe(e *Error) *Error {
	e.Model = c.model
	e.Endpoint = c.endpoint
	return e
}

var _ Client = (*AnthropicClient)(nil)
