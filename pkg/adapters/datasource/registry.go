package datasource

import (
	"context"
	"sync"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

// AdapterInfo describes a registered backend.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "sqlserver"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// Registration contains adapter info plus the factories for each
// capability. Factories receive the datasource config as a generic map
// so backends can define their own fields.
type Registration struct {
	Info             AdapterInfo
	TesterFactory    func(ctx context.Context, config map[string]any) (ConnectionTester, error)
	ExtractorFactory func(ctx context.Context, config map[string]any) (SchemaExtractor, error)
	ExecutorFactory  func(ctx context.Context, config map[string]any) (QueryExecutor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for every registered backend.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

func lookup(dsType string) (Registration, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg, ok := registry[dsType]
	if !ok {
		return Registration{}, apperrors.Configurationf("unknown datasource type %q", dsType)
	}
	return reg, nil
}

// NewTester builds a ConnectionTester for the named backend type.
func NewTester(ctx context.Context, dsType string, config map[string]any) (ConnectionTester, error) {
	reg, err := lookup(dsType)
	if err != nil {
		return nil, err
	}
	return reg.TesterFactory(ctx, config)
}

// NewExtractor builds a SchemaExtractor for the named backend type.
func NewExtractor(ctx context.Context, dsType string, config map[string]any) (SchemaExtractor, error) {
	reg, err := lookup(dsType)
	if err != nil {
		return nil, err
	}
	return reg.ExtractorFactory(ctx, config)
}

// NewExecutor builds a QueryExecutor for the named backend type.
func NewExecutor(ctx context.Context, dsType string, config map[string]any) (QueryExecutor, error) {
	reg, err := lookup(dsType)
	if err != nil {
		return nil, err
	}
	return reg.ExecutorFactory(ctx, config)
}
