package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource"
)

// QueryExecutor provides bounded SQL Server query execution.
type QueryExecutor struct {
	db *sql.DB
}

// NewQueryExecutor creates a SQL Server query executor with its own
// connection.
func NewQueryExecutor(ctx context.Context, cfg *Config) (*QueryExecutor, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{db: db}, nil
}

// boundedQuery wraps the statement with a TOP clause so the database
// enforces the row cap even when the inner query carries its own bound.
func boundedQuery(sqlQuery string, limit int) string {
	if limit <= 0 || limit > datasource.MaxQueryLimit {
		limit = datasource.MaxQueryLimit
	}
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", limit, sqlQuery)
}

// Query runs a SELECT statement with no bound parameters.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a parameterized SELECT. Placeholders use @p1,
// @p2, etc.; values are bound as named parameters so they never enter
// the SQL text.
func (e *QueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryResult, error) {
	namedParams := make([]any, len(params))
	for i, param := range params {
		namedParams[i] = sql.Named(fmt.Sprintf("p%d", i+1), param)
	}

	rows, err := e.db.QueryContext(ctx, boundedQuery(sqlQuery, limit), namedParams...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]datasource.ColumnInfo, len(columnNames))
	for i, colName := range columnNames {
		columns[i] = datasource.ColumnInfo{
			Name: colName,
			Type: mapSQLServerType(columnTypes[i].DatabaseTypeName()),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any)
		for i, col := range columnNames {
			val := values[i]

			// The driver hands text columns back as []byte.
			if b, ok := val.([]byte); ok && isStringType(columnTypes[i].DatabaseTypeName()) {
				val = string(b)
			}

			rowMap[col] = val
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// QuoteIdentifier quotes a SQL identifier using SQL Server's square
// bracket syntax.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteName(name)
}

// Close releases the connection.
func (e *QueryExecutor) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
