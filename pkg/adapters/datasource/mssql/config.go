package mssql

import (
	"fmt"
	"net/url"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

const (
	// DefaultPort is the default SQL Server port.
	DefaultPort = 1433

	// DefaultConnectionTimeout is the default connection timeout in seconds.
	DefaultConnectionTimeout = 30

	// DefaultSchema is the schema the extractor reads when none is configured.
	DefaultSchema = "dbo"
)

// Config contains SQL Server-specific connection options. Authentication
// is SQL Server username/password.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Schema   string // schema the extractor reads, default "dbo"

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int // seconds
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort,
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout,
		Schema:            DefaultSchema,
	}

	if host, ok := config["host"].(string); ok {
		cfg.Host = host
	} else {
		return nil, apperrors.Configurationf("sqlserver config: host is required")
	}

	if port, ok := config["port"].(float64); ok { // JSON numbers are float64
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if username, ok := config["username"].(string); ok {
		cfg.Username = username
	} else if user, ok := config["user"].(string); ok {
		cfg.Username = user
	} else {
		return nil, apperrors.Configurationf("sqlserver config: username is required")
	}

	// Password can be empty for some local setups.
	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok {
		cfg.Database = database
	} else {
		return nil, apperrors.Configurationf("sqlserver config: database is required")
	}

	if schemaName, ok := config["schema"].(string); ok {
		cfg.Schema = schemaName
	}

	if encrypt, ok := config["encrypt"].(bool); ok {
		cfg.Encrypt = encrypt
	} else if encryptStr, ok := config["encrypt"].(string); ok {
		// Support string values: "true", "false", "strict"
		cfg.Encrypt = encryptStr == "true" || encryptStr == "strict"
	}

	if trust, ok := config["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}

	if timeout, ok := config["connection_timeout"].(float64); ok {
		cfg.ConnectionTimeout = int(timeout)
	} else if timeout, ok := config["connection_timeout"].(int); ok {
		cfg.ConnectionTimeout = timeout
	}

	return cfg, nil
}

// Validate checks the config carries everything a connection needs.
func (c *Config) Validate() error {
	if c.Host == "" {
		return apperrors.Configurationf("sqlserver config: host is required")
	}
	if c.Database == "" {
		return apperrors.Configurationf("sqlserver config: database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return apperrors.Configurationf("sqlserver config: invalid port %d", c.Port)
	}
	if c.Username == "" {
		return apperrors.Configurationf("sqlserver config: username is required")
	}
	return nil
}

// ConnString builds a sqlserver URL. Credentials are URL-escaped so
// special characters in passwords survive URL parsing.
func (c *Config) ConnString() string {
	query := url.Values{}
	query.Add("database", c.Database)

	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}

	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		query.Encode(),
	)
}

// schemaName returns the configured extraction schema.
func (c *Config) schemaName() string {
	if c.Schema == "" {
		return DefaultSchema
	}
	return c.Schema
}
