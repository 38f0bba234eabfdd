package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/queryguard-io/queryguard-engine/pkg/intent"
	"github.com/queryguard-io/queryguard-engine/pkg/logging"
	"github.com/queryguard-io/queryguard-engine/pkg/prompts"
	"github.com/queryguard-io/queryguard-engine/pkg/retry"
	"github.com/queryguard-io/queryguard-engine/pkg/schema"
)

// Producer turns a natural-language question into a validated intent by
// prompting a model client and decoding its response. Transport faults
// retry and feed the circuit breaker; a malformed response is the
// model's answer, so it fails without either.
type Producer struct {
	client  Client
	breaker *CircuitBreaker
	retry   *retry.Config
	logger  *zap.Logger
}

// NewProducer wraps a client with retry and circuit-breaker handling.
// cfg.MaxRetries overrides the retry default when positive.
func NewProducer(client Client, cfg *Config, logger *zap.Logger) *Producer {
	rc := retry.DefaultConfig()
	if cfg != nil && cfg.MaxRetries > 0 {
		rc.MaxRetries = cfg.MaxRetries
	}
	return &Producer{
		client:  client,
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		retry:   rc,
		logger:  logger.Named("producer"),
	}
}

// ProposeIntent asks the model to describe the question as a query over
// the given tables and returns the decoded, validated intent.
func (p *Producer) ProposeIntent(ctx context.Context, question string, tables []schema.Table) (*intent.QueryIntent, error) {
	if err := p.breaker.Allow(); err != nil {
		e := NewError(ErrorTypeEndpoint, "provider unavailable", false, err)
		e.Model = p.client.Model()
		e.Endpoint = p.client.Endpoint()
		return nil, e
	}

	system := prompts.BuildQueryIntentSystemMessage()
	user := prompts.BuildQueryIntentPrompt(schema.FormatForPrompt(tables, 0), question)

	raw, err := retry.DoWithResultIfRetryable(ctx, p.retry, func() (string, error) {
		return p.client.Complete(ctx, system, user)
	})
	if err != nil {
		p.breaker.RecordFailure()
		return nil, err
	}
	p.breaker.RecordSuccess()

	if thinking := ExtractThinking(raw); thinking != "" {
		p.logger.Debug("model reasoning",
			zap.String("thinking", logging.BoundFragment(thinking)))
	}

	qi, err := DecodeIntent(raw)
	if err != nil {
		p.logger.Warn("candidate rejected",
			zap.String("model", p.client.Model()),
			zap.Error(err))
		return nil, err
	}

	qi.Provenance.SourceText = question
	return qi, nil
}

// Model reports the underlying client's model name.
func (p *Producer) Model() string { return p.client.Model() }

var _ Provider = (*Producer)(nil)
