package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource"
	"github.com/queryguard-io/queryguard-engine/pkg/schema"
)

// SchemaExtractor reads table and column metadata from a single schema.
// Table names are returned unqualified so they line up with the names
// query intents carry.
type SchemaExtractor struct {
	config *Config
	db     *sql.DB
}

// NewSchemaExtractor creates a SQL Server schema extractor with its own
// connection.
func NewSchemaExtractor(ctx context.Context, cfg *Config) (*SchemaExtractor, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SchemaExtractor{config: cfg, db: db}, nil
}

// Schema returns all user tables in the configured schema with their
// columns in ordinal order.
func (x *SchemaExtractor) Schema(ctx context.Context) ([]schema.Table, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    t.name AS table_name,
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable
	FROM sys.tables t
	INNER JOIN sys.columns c ON c.object_id = t.object_id
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	WHERE t.is_ms_shipped = 0
	  AND SCHEMA_NAME(t.schema_id) = @schema
	ORDER BY t.name, c.column_id
	`

	rows, err := x.db.QueryContext(ctx, query, sql.Named("schema", x.config.schemaName()))
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var tableName, columnName, dataType string
		var isNullable int
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}

		if len(tables) == 0 || tables[len(tables)-1].Name != tableName {
			tables = append(tables, schema.Table{Name: tableName})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, schema.Column{
			Name:     columnName,
			DataType: mapSQLServerType(dataType),
			Nullable: isNullable == 1,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return tables, nil
}

// Close releases the connection.
func (x *SchemaExtractor) Close() error {
	if x.db != nil {
		return x.db.Close()
	}
	return nil
}

var _ datasource.SchemaExtractor = (*SchemaExtractor)(nil)
