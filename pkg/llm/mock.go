package llm

import (
	"context"

	"github.com/queryguard-io/queryguard-engine/pkg/intent"
	"github.com/queryguard-io/queryguard-engine/pkg/schema"
)

// MockClient is a configurable mock for testing against the Client
// interface. Set the function fields to control behavior in tests.
type MockClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns "{}" and nil error.
	CompleteFunc func(ctx context.Context, system string, user string) (string, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// EndpointURL is returned by Endpoint. Defaults to "http://mock-endpoint".
	EndpointURL string

	// Call tracking for verification
	CompleteCalls int
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ModelName:   "mock-model",
		EndpointURL: "http://mock-endpoint",
	}
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, system string, user string) (string, error) {
	m.CompleteCalls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, user)
	}
	return "{}", nil
}

// Model implements Client.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Endpoint implements Client.
func (m *MockClient) Endpoint() string {
	if m.EndpointURL == "" {
		return "http://mock-endpoint"
	}
	return m.EndpointURL
}

// Reset clears call tracking counters.
func (m *MockClient) Reset() {
	m.CompleteCalls = 0
}

// Ensure MockClient implements Client at compile time.
var _ Client = (*MockClient)(nil)

// MockProvider is a configurable mock for testing against the Provider
// interface above the producer layer.
type MockProvider struct {
	// ProposeIntentFunc is called when ProposeIntent is invoked.
	// If nil, returns a minimal SELECT intent over "users".
	ProposeIntentFunc func(ctx context.Context, question string, tables []schema.Table) (*intent.QueryIntent, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification
	ProposeIntentCalls int
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{ModelName: "mock-model"}
}

// ProposeIntent implements Provider.
func (m *MockProvider) ProposeIntent(ctx context.Context, question string, tables []schema.Table) (*intent.QueryIntent, error) {
	m.ProposeIntentCalls++
	if m.ProposeIntentFunc != nil {
		return m.ProposeIntentFunc(ctx, question, tables)
	}
	return intent.New(intent.TypeSelect, "users")
}

// Model implements Provider.
func (m *MockProvider) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Reset clears call tracking counters.
func (m *MockProvider) Reset() {
	m.ProposeIntentCalls = 0
}

// Ensure MockProvider implements Provider at compile time.
var _ Provider = (*MockProvider)(nil)
