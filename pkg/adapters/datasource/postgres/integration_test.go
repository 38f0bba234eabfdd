//go:build integration

package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/queryguard-io/queryguard-engine/pkg/testhelpers"
)

func integrationConfig(t *testing.T) *Config {
	t.Helper()

	testDB := testhelpers.GetPostgresDB(t)
	return &Config{
		Host:     testDB.Host,
		Port:     testDB.Port,
		User:     testDB.User,
		Password: testDB.Password,
		Database: testDB.Database,
		SSLMode:  "disable",
	}
}

func TestIntegration_TestConnection(t *testing.T) {
	cfg := integrationConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adapter, err := NewAdapter(ctx, cfg)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	defer adapter.Close()

	if err := adapter.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestIntegration_TestConnection_WrongDatabase(t *testing.T) {
	cfg := integrationConfig(t)
	cfg.Database = "no_such_database"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Pool creation is lazy, the failure surfaces on first use.
	adapter, err := NewAdapter(ctx, cfg)
	if err != nil {
		return
	}
	defer adapter.Close()

	if err := adapter.TestConnection(ctx); err == nil {
		t.Error("expected TestConnection to fail for missing database")
	}
}

func TestIntegration_Query_Bounded(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()

	executor, err := NewQueryExecutor(ctx, cfg)
	if err != nil {
		t.Fatalf("NewQueryExecutor failed: %v", err)
	}
	defer executor.Close()

	result, err := executor.Query(ctx, "SELECT id, status FROM orders", 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if result.RowCount != 5 {
		t.Errorf("expected 5 rows, got %d", result.RowCount)
	}
	if len(result.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(result.Columns))
	}
	if result.Columns[0].Name != "id" || result.Columns[1].Name != "status" {
		t.Errorf("unexpected columns: %v", result.Columns)
	}
}

func TestIntegration_Query_InnerLimitStillBounded(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()

	executor, err := NewQueryExecutor(ctx, cfg)
	if err != nil {
		t.Fatalf("NewQueryExecutor failed: %v", err)
	}
	defer executor.Close()

	result, err := executor.Query(ctx, "SELECT id FROM orders LIMIT 500", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if result.RowCount != 3 {
		t.Errorf("outer bound must win: expected 3 rows, got %d", result.RowCount)
	}
}

func TestIntegration_QueryWithParams(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()

	executor, err := NewQueryExecutor(ctx, cfg)
	if err != nil {
		t.Fatalf("NewQueryExecutor failed: %v", err)
	}
	defer executor.Close()

	result, err := executor.QueryWithParams(ctx,
		"SELECT name FROM products WHERE in_stock = $1 ORDER BY name", []any{true}, 0)
	if err != nil {
		t.Fatalf("QueryWithParams failed: %v", err)
	}

	if result.RowCount == 0 {
		t.Fatal("expected at least one in-stock product")
	}
	for _, row := range result.Rows {
		if _, ok := row["name"].(string); !ok {
			t.Errorf("expected string name, got %T", row["name"])
		}
	}
}

func TestIntegration_SchemaExtraction(t *testing.T) {
	cfg := integrationConfig(t)
	ctx := context.Background()

	extractor, err := NewSchemaExtractor(ctx, cfg)
	if err != nil {
		t.Fatalf("NewSchemaExtractor failed: %v", err)
	}
	defer extractor.Close()

	tables, err := extractor.Schema(ctx)
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	byName := map[string][]string{}
	for _, table := range tables {
		if strings.Contains(table.Name, ".") {
			t.Errorf("table names must be unqualified, got %q", table.Name)
		}
		var cols []string
		for _, col := range table.Columns {
			cols = append(cols, col.Name)
		}
		byName[table.Name] = cols
	}

	products, ok := byName["products"]
	if !ok {
		t.Fatalf("expected products table, got %v", byName)
	}
	for _, want := range []string{"id", "name", "price", "in_stock"} {
		found := false
		for _, col := range products {
			if col == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("products missing column %q, got %v", want, products)
		}
	}

	if _, ok := byName["orders"]; !ok {
		t.Errorf("expected orders table, got %v", byName)
	}
}
