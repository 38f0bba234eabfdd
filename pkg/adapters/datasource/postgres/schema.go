package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource"
	"github.com/queryguard-io/queryguard-engine/pkg/schema"
)

// SchemaExtractor reads table and column metadata from a single schema.
// Table names are returned unqualified so they line up with the names
// query intents carry.
type SchemaExtractor struct {
	config *Config
	pool   *pgxpool.Pool
}

// NewSchemaExtractor creates a PostgreSQL schema extractor with its own pool.
func NewSchemaExtractor(ctx context.Context, cfg *Config) (*SchemaExtractor, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SchemaExtractor{config: cfg, pool: pool}, nil
}

// Schema returns all base tables in the configured schema with their
// columns in ordinal order.
func (x *SchemaExtractor) Schema(ctx context.Context) ([]schema.Table, error) {
	const query = `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE t.table_type = 'BASE TABLE'
		  AND c.table_schema = $1
		ORDER BY c.table_name, c.ordinal_position
	`

	rows, err := x.pool.Query(ctx, query, x.config.schemaName())
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var tableName string
		var col schema.Column
		if err := rows.Scan(&tableName, &col.Name, &col.DataType, &col.Nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}

		if len(tables) == 0 || tables[len(tables)-1].Name != tableName {
			tables = append(tables, schema.Table{Name: tableName})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return tables, nil
}

// Close releases the pool.
func (x *SchemaExtractor) Close() error {
	if x.pool != nil {
		x.pool.Close()
	}
	return nil
}

var _ datasource.SchemaExtractor = (*SchemaExtractor)(nil)
