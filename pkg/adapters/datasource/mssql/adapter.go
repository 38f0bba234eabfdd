package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/queryguard-io/queryguard-engine/pkg/adapters/datasource"
)

// openDB opens a SQL Server connection and verifies it with a ping.
func openDB(ctx context.Context, cfg *Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlserver", cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return db, nil
}

// Adapter provides SQL Server connectivity checks.
type Adapter struct {
	config *Config
	db     *sql.DB
}

// NewAdapter creates a SQL Server adapter with its own connection.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Adapter{config: cfg, db: db}, nil
}

// TestConnection verifies the database is reachable with valid credentials
// and that the configured database is the one answering.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	var currentDB string
	if err := a.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	// SQL Server database names are case-insensitive under the default
	// collation.
	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}

	return nil
}

// Close releases the connection.
func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

var _ datasource.ConnectionTester = (*Adapter)(nil)
