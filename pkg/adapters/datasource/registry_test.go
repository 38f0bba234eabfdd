package datasource_test

import (
	"context"
	"errors"
	"testing"

	"github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource"
	_ "github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource/mssql"
	_ "github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource/postgres"
	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
	"github.com/queryguard-io/queryguard-engine/pkg/schema"
)

type fakeExtractor struct{}

func (fakeExtractor) Schema(ctx context.Context) ([]schema.Table, error) {
	return []schema.Table{{Name: "users"}}, nil
}

func (fakeExtractor) Close() error { return nil }

func TestRegistry_RoundTrip(t *testing.T) {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{Type: "fake", DisplayName: "Fake"},
		ExtractorFactory: func(ctx context.Context, config map[string]any) (datasource.SchemaExtractor, error) {
			return fakeExtractor{}, nil
		},
	})

	if !datasource.IsRegistered("fake") {
		t.Fatal("expected fake adapter to be registered")
	}

	extractor, err := datasource.NewExtractor(context.Background(), "fake", nil)
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}
	defer extractor.Close()

	tables, err := extractor.Schema(context.Background())
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if len(tables) != 1 || tables[0].Name != "users" {
		t.Errorf("unexpected tables: %v", tables)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	_, err := datasource.NewExecutor(context.Background(), "no-such-backend", nil)
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestRegistry_BuiltinsRegistered(t *testing.T) {
	for _, dsType := range []string{"postgres", "sqlserver"} {
		if !datasource.IsRegistered(dsType) {
			t.Errorf("expected %s adapter to be registered", dsType)
		}
	}
}

func TestRegisteredAdapters(t *testing.T) {
	infos := datasource.RegisteredAdapters()
	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.Type] = true
	}
	if !seen["postgres"] || !seen["sqlserver"] {
		t.Errorf("expected builtin adapters in listing, got %v", infos)
	}
}
