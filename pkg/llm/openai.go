package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

// OpenAIClient talks to any endpoint speaking the OpenAI chat completion
// protocol: the hosted API, vLLM, Ollama, LM Studio and the rest.
type OpenAIClient struct {
	client      *openai.Client
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg *Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.Configurationf("llm endpoint is required")
	}
	if cfg.Model == "" {
		return nil, apperrors.Configurationf("llm model is required")
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = endpoint

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		endpoint:    endpoint,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		logger:      logger.Named("llm"),
	}, nil
}

// Complete sends one system+user exchange and returns the reply text.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	c.logger.Debug("model request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(user)))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:         float32(c.temperature),
		MaxCompletionTokens: c.maxTokens,
	})
	if err != nil {
		c.logger.Error("model request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.describe(ClassifyError(err))
	}

	if len(resp.Choices) == 0 {
		return "", c.describe(NewError(ErrorTypeUnknown, "no choices in response", false, nil))
	}

	c.logger.Info("model request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

// Endpoint returns the configured base URL.
func (c *OpenAIClient) Endpoint() string { return c.endpoint }

func (c *OpenAIClient) describe(e *Error) *Error {
	e.Model = c.model
	e.Endpoint = c.endpoint
	return e
}

var _ Client = (*OpenAIClient)(nil)
