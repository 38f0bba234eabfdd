// Package llm produces candidate query intents from natural-language
// questions by calling a language model endpoint. Model output is
// untrusted: it is extracted, decoded and validated here, so nothing
// reaches the rest of the pipeline except a well-formed intent.
package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
	"github.com/queryguard-io/queryguard-engine/pkg/intent"
	"github.com/queryguard-io/queryguard-engine/pkg/schema"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultMaxTokens bounds the completion when the config does not.
const DefaultMaxTokens = 2048

// Provider proposes candidate query intents. The engine depends on this
// interface only; tests substitute a mock.
type Provider interface {
	// ProposeIntent asks the model to describe the query answering the
	// question over the given schema, and returns the validated result.
	ProposeIntent(ctx context.Context, question string, tables []schema.Table) (*intent.QueryIntent, error)

	// Model returns the configured model name, for logging and audit.
	Model() string
}

// Client is the transport to one chat-completion endpoint. One
// implementation exists per wire protocol; the Producer drives them
// identically.
type Client interface {
	// Complete sends one system+user exchange and returns the raw text
	// of the first reply.
	Complete(ctx context.Context, system, user string) (string, error)

	Model() string
	Endpoint() string
}

// Config holds the settings for one language model provider.
type Config struct {
	Provider    string  // "openai" (any compatible endpoint) or "anthropic"
	Endpoint    string  // base URL; optional for anthropic
	Model       string  // model name
	APIKey      string  // optional for local endpoints
	Temperature float64 // 0 leaves the endpoint default
	MaxTokens   int     // completion cap; 0 means DefaultMaxTokens
	MaxRetries  int     // transient-fault retries; 0 means retry defaults
}

// NewClient builds the transport client named by cfg.Provider. An empty
// provider name means OpenAI-compatible, which covers every local
// serving stack that speaks that protocol.
func NewClient(cfg *Config, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	}
	return nil, apperrors.Configurationf("unknown llm provider %q", cfg.Provider)
}

// NewProvider builds the full producer for a configuration: transport
// client, retry policy and circuit breaker.
func NewProvider(cfg *Config, logger *zap.Logger) (Provider, error) {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewProducer(client, cfg, logger), nil
}
