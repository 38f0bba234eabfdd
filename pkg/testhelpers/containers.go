package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the stock image integration tests run against. The
// sample schema is seeded after the container starts.
const PostgresImage = "postgres:16-alpine"

const (
	testUser     = "queryguard"
	testPassword = "test_password"
	testDatabase = "test_data"
)

// PostgresDB holds a shared test database container and connection pool.
type PostgresDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
}

var (
	sharedPostgresDB     *PostgresDB
	sharedPostgresDBOnce sync.Once
	sharedPostgresDBErr  error
)

// GetPostgresDB returns a shared PostgreSQL container for integration
// tests. The container is created once, seeded with the sample schema,
// and reused across all tests in the run.
func GetPostgresDB(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPostgresDBOnce.Do(func() {
		sharedPostgresDB, sharedPostgresDBErr = setupPostgresDB()
	})

	if sharedPostgresDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedPostgresDBErr)
	}

	return sharedPostgresDB
}

func setupPostgresDB() (*PostgresDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDatabase,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		testUser, testPassword, host, port.Port(), testDatabase)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := seedSampleSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to seed sample schema: %w", err)
	}

	return &PostgresDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port.Int(),
		User:      testUser,
		Password:  testPassword,
		Database:  testDatabase,
	}, nil
}

// seedSampleSchema creates the tables integration tests query. It is
// idempotent so the shared container can be reused within a run.
func seedSampleSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			price NUMERIC(10,2),
			in_stock BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			product_id INTEGER REFERENCES products(id),
			quantity INTEGER NOT NULL,
			status TEXT NOT NULL,
			ordered_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`TRUNCATE orders, products RESTART IDENTITY CASCADE`,
		`INSERT INTO products (name, price, in_stock) VALUES
			('widget', 9.95, true),
			('gadget', 24.50, true),
			('sprocket', 3.15, true),
			('gizmo', 128.00, true),
			('doodad', 1.99, false),
			('thingamajig', 45.00, false)`,
		`INSERT INTO orders (product_id, quantity, status)
			SELECT (i % 6) + 1,
			       (i % 5) + 1,
			       CASE i % 3 WHEN 0 THEN 'shipped' WHEN 1 THEN 'open' ELSE 'cancelled' END
			FROM generate_series(1, 20) AS i`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(40, len(stmt))], err)
		}
	}
	return nil
}
