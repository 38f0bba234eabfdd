// Package datasource defines the capability interfaces database
// adapters implement and the registry backends register with. The
// engine only ever hands adapters SQL that already passed validation
// and translation; executors still bound every query themselves.
package datasource

import (
	"context"

	"github.com/queryguard-io/queryguard-engine/pkg/schema"
)

// MaxQueryLimit is the hard cap on rows returned by Query methods.
// This protects against unbounded queries that could exhaust the
// server regardless of what limit a caller asks for.
const MaxQueryLimit = 1000

// QueryExecutor executes SELECT statements against a datasource.
// Queries are ALWAYS wrapped with a dialect-specific bound:
//   - PostgreSQL: SELECT * FROM (query) AS _limited LIMIT n
//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
//
// Limit behavior: limit <= 0 or limit > MaxQueryLimit uses
// MaxQueryLimit; otherwise the given limit applies.
//
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// Query runs a SELECT statement with no bound parameters.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error)

	// QueryWithParams runs a parameterized SELECT. Placeholders use the
	// adapter's native syntax (PostgreSQL $1, SQL Server @p1); params
	// provides values in placeholder order.
	QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryResult, error)

	// QuoteIdentifier quotes a table, column or schema name in the
	// adapter's dialect.
	QuoteIdentifier(name string) string

	// Close releases the connection.
	Close() error
}

// SchemaExtractor reads table and column metadata. It satisfies
// schema.Provider so extractors can sit behind the schema cache.
type SchemaExtractor interface {
	// Schema returns all user tables with their columns.
	Schema(ctx context.Context) ([]schema.Table, error)

	// Close releases the connection.
	Close() error
}

// ConnectionTester tests database connectivity.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid
	// credentials and that the configured database is the one answering.
	TestConnection(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// ColumnInfo describes a result column with the backend's type name.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult holds the rows returned by a bounded query.
type QueryResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}
