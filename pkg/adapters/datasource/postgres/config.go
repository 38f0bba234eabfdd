package postgres

import (
	"fmt"
	"net/url"
	"time"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

const (
	// DefaultPort is the default PostgreSQL port.
	DefaultPort = 5432

	// DefaultSSLMode is used when the config does not specify one.
	DefaultSSLMode = "require"

	// DefaultSchema is the schema the extractor reads when none is configured.
	DefaultSchema = "public"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
	Schema   string // schema the extractor reads, default "public"

	// Pool sizing. Zero values keep the pgxpool defaults.
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    DefaultPort,
		SSLMode: DefaultSSLMode,
		Schema:  DefaultSchema,
	}

	if host, ok := config["host"].(string); ok {
		cfg.Host = host
	} else {
		return nil, apperrors.Configurationf("postgres config: host is required")
	}

	if port, ok := intValue(config["port"]); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok {
		cfg.User = user
	} else {
		return nil, apperrors.Configurationf("postgres config: user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok {
		cfg.Database = database
	} else {
		return nil, apperrors.Configurationf("postgres config: database is required")
	}

	if sslMode, ok := config["ssl_mode"].(string); ok {
		cfg.SSLMode = sslMode
	}

	if schemaName, ok := config["schema"].(string); ok {
		cfg.Schema = schemaName
	}

	if maxConns, ok := intValue(config["max_conns"]); ok {
		cfg.MaxConns = maxConns
	}

	if minConns, ok := intValue(config["min_conns"]); ok {
		cfg.MinConns = minConns
	}

	var err error
	if cfg.MaxConnLifetime, err = durationValue(config, "max_conn_lifetime"); err != nil {
		return nil, err
	}
	if cfg.MaxConnIdleTime, err = durationValue(config, "max_conn_idle_time"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// intValue reads a numeric map entry. JSON decoding yields float64,
// YAML and literal maps yield int.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func durationValue(config map[string]any, key string) (time.Duration, error) {
	raw, ok := config[key].(string)
	if !ok {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, apperrors.Configurationf("postgres config: %s: invalid duration %q", key, raw)
	}
	return d, nil
}

// ConnString builds a PostgreSQL URL with proper escaping. User-provided
// fields are URL-escaped to handle special characters in passwords
// (e.g. @, /, #, ?) that would otherwise break URL parsing. Pool sizing
// options are appended in the form pgxpool parses from the URL.
func (c *Config) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode
	}

	connStr := fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.Database),
		sslMode,
	)

	if c.MaxConns > 0 {
		connStr += fmt.Sprintf("&pool_max_conns=%d", c.MaxConns)
	}
	if c.MinConns > 0 {
		connStr += fmt.Sprintf("&pool_min_conns=%d", c.MinConns)
	}
	if c.MaxConnLifetime > 0 {
		connStr += "&pool_max_conn_lifetime=" + c.MaxConnLifetime.String()
	}
	if c.MaxConnIdleTime > 0 {
		connStr += "&pool_max_conn_idle_time=" + c.MaxConnIdleTime.String()
	}

	return connStr
}

// schemaName returns the configured extraction schema.
func (c *Config) schemaName() string {
	if c.Schema == "" {
		return DefaultSchema
	}
	return c.Schema
}
