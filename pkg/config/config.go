// Package config loads engine configuration from config.yaml with
// environment variable overrides and hands each section to the package
// that consumes it.
package config

import (
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/queryguard-io/queryguard-engine/pkg/access"
	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
	"github.com/queryguard-io/queryguard-engine/pkg/auth"
	"github.com/queryguard-io/queryguard-engine/pkg/crypto"
	"github.com/queryguard-io/queryguard-engine/pkg/llm"
	"github.com/queryguard-io/queryguard-engine/pkg/validate"
)

// Config holds all configuration for the engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets must come from environment variables or be stored as ENC[...] values.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Security policy for candidate and native queries
	Security validate.Config `yaml:"security"`

	// Access control policy
	Access AccessConfig `yaml:"access"`

	// Token verification
	Auth AuthConfig `yaml:"auth"`

	// Candidate query producer (LLM)
	Producer ProducerConfig `yaml:"producer"`

	// Datasource queries execute against
	Datasource DatasourceConfig `yaml:"datasource"`

	// Schema metadata cache
	Schema SchemaConfig `yaml:"schema"`

	// Credential encryption key for ENC[...] values in this file.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"QUERYGUARD_CREDENTIALS_KEY"` // Secret - not in YAML
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	// Mode "production" emits JSON; anything else emits the development
	// console encoding.
	Mode string `yaml:"mode" env:"LOG_MODE" env-default:"development"`
}

// AccessConfig points at the permission policy file and carries the
// ceilings applied to principals the policy does not name.
type AccessConfig struct {
	// PolicyFile is the YAML permission policy path. Empty means no
	// policy file; every principal gets the default profile.
	PolicyFile string `yaml:"policy_file" env:"ACCESS_POLICY_FILE" env-default:""`

	// DefaultMaxRows overrides the fallback profile's row ceiling.
	// Zero keeps the controller's built-in default.
	DefaultMaxRows int `yaml:"default_max_rows" env:"ACCESS_DEFAULT_MAX_ROWS" env-default:"0"`

	// DefaultMaxExecSeconds overrides the fallback profile's execution
	// time ceiling. Zero keeps the controller's built-in default.
	DefaultMaxExecSeconds int `yaml:"default_max_execution_seconds" env:"ACCESS_DEFAULT_MAX_EXECUTION_SECONDS" env-default:"0"`
}

// DefaultProfile returns the fallback-profile override from this
// section, or nil when the controller's built-in ceilings apply. A
// policy file's own default section takes precedence over this.
func (c *AccessConfig) DefaultProfile() *access.ProfileDoc {
	if c.DefaultMaxRows <= 0 && c.DefaultMaxExecSeconds <= 0 {
		return nil
	}
	return &access.ProfileDoc{
		MaxRows:        c.DefaultMaxRows,
		MaxExecSeconds: c.DefaultMaxExecSeconds,
	}
}

// AuthConfig holds token verification configuration.
type AuthConfig struct {
	// Mode selects token verification: off, static or jwks.
	Mode string `yaml:"mode" env:"AUTH_MODE" env-default:"off"`

	// StaticSecret is the shared HMAC secret for static mode.
	StaticSecret string `yaml:"-" env:"AUTH_STATIC_SECRET"` // Secret - not in YAML

	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer" env:"AUTH_ISSUER" env-default:""`

	// Audience, when set, must appear in the token's aud claim.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:""`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// VerifierConfig converts this section into the auth package's
// configuration.
func (c *AuthConfig) VerifierConfig() *auth.VerifierConfig {
	return &auth.VerifierConfig{
		Mode:          c.Mode,
		StaticSecret:  c.StaticSecret,
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		JWKSEndpoints: c.JWKSEndpoints,
	}
}

// ProducerConfig configures the model client that proposes candidate
// queries.
type ProducerConfig struct {
	// Provider is "openai" (any compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`

	// Endpoint is the base URL; optional for anthropic.
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`

	// Model is the model name to request.
	Model string `yaml:"model" env:"LLM_MODEL" env-default:""`

	// APIKey authenticates with the provider; optional for local
	// endpoints. May be an ENC[...] value.
	APIKey string `yaml:"api_key" env:"LLM_API_KEY" env-default:""`

	// Temperature of 0 leaves the endpoint default.
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`

	// MaxTokens caps completion length; 0 means the client default.
	MaxTokens int `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"0"`

	// MaxRetries bounds transient-fault retries; 0 means retry defaults.
	MaxRetries int `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"0"`
}

// LLMConfig converts this section into the llm package's configuration.
func (c *ProducerConfig) LLMConfig() *llm.Config {
	return &llm.Config{
		Provider:    c.Provider,
		Endpoint:    c.Endpoint,
		Model:       c.Model,
		APIKey:      c.APIKey,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		MaxRetries:  c.MaxRetries,
	}
}

// DatasourceConfig describes the database queries execute against.
type DatasourceConfig struct {
	// Name labels the datasource in logs and audit events.
	Name string `yaml:"name" env:"DATASOURCE_NAME" env-default:"default"`

	// Driver is a registered adapter type: postgres or sqlserver.
	Driver string `yaml:"driver" env:"DATASOURCE_DRIVER" env-default:"postgres"`

	Host string `yaml:"host" env:"DATASOURCE_HOST" env-default:"localhost"`
	Port int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"0"` // 0 means the driver default

	User string `yaml:"user" env:"DATASOURCE_USER" env-default:""`

	// Password may be an ENC[...] value in the YAML file; plaintext
	// passwords belong in the environment only.
	Password string `yaml:"password" env:"DATASOURCE_PASSWORD" env-default:""`

	Database string `yaml:"database" env:"DATASOURCE_DATABASE" env-default:""`

	// SSLMode applies to postgres (disable, require, verify-full, ...).
	SSLMode string `yaml:"ssl_mode" env:"DATASOURCE_SSL_MODE" env-default:""`

	// Schema is the namespace searched for tables; empty means the
	// driver default (public / dbo).
	Schema string `yaml:"schema" env:"DATASOURCE_SCHEMA" env-default:""`

	// Encrypt applies to sqlserver ("true", "false" or "strict").
	Encrypt string `yaml:"encrypt" env:"DATASOURCE_ENCRYPT" env-default:""`

	// Pool sizing (postgres).
	MaxConns int `yaml:"max_conns" env:"DATASOURCE_MAX_CONNS" env-default:"10"`
	MinConns int `yaml:"min_conns" env:"DATASOURCE_MIN_CONNS" env-default:"1"`
}

// AdapterConfig renders the connection map consumed by the datasource
// adapter registry. The host is rewritten when running inside Docker so
// a localhost datasource stays reachable from a container.
func (c *DatasourceConfig) AdapterConfig() map[string]any {
	cfg := map[string]any{
		"host":     ResolveHostForDocker(c.Host),
		"database": c.Database,
	}
	if c.Port > 0 {
		cfg["port"] = c.Port
	}
	if c.Schema != "" {
		cfg["schema"] = c.Schema
	}
	if c.Password != "" {
		cfg["password"] = c.Password
	}

	switch c.Driver {
	case "sqlserver":
		if c.User != "" {
			cfg["username"] = c.User
		}
		if c.Encrypt != "" {
			cfg["encrypt"] = c.Encrypt
		}
	default:
		cfg["user"] = c.User
		if c.SSLMode != "" {
			cfg["ssl_mode"] = c.SSLMode
		}
		if c.MaxConns > 0 {
			cfg["max_conns"] = c.MaxConns
		}
		if c.MinConns > 0 {
			cfg["min_conns"] = c.MinConns
		}
	}
	return cfg
}

// SchemaConfig controls the schema metadata cache.
type SchemaConfig struct {
	// CacheTTLMinutes is how long fetched schema metadata stays fresh.
	CacheTTLMinutes int `yaml:"cache_ttl_minutes" env:"SCHEMA_CACHE_TTL_MINUTES" env-default:"60"`
}

// CacheTTL returns the cache lifetime as a duration.
func (c *SchemaConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on
// the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom reads configuration from the named YAML file with
// environment variable overrides, resolves encrypted values and
// validates the result.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, apperrors.Configurationf("read %s: %v", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, err
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	// Parse JWKS endpoints from string to map
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	return nil
}

// resolveSecrets opens every ENC[...] value using the configured
// credentials key. Plain values pass through untouched.
func (c *Config) resolveSecrets() error {
	fields := []*string{
		&c.Datasource.Password,
		&c.Producer.APIKey,
		&c.Auth.StaticSecret,
	}

	anyEncrypted := false
	for _, f := range fields {
		if crypto.IsEncrypted(*f) {
			anyEncrypted = true
		}
	}
	if !anyEncrypted {
		return nil
	}

	if c.CredentialsKey == "" {
		return apperrors.Configurationf("config carries ENC[...] values but QUERYGUARD_CREDENTIALS_KEY is not set")
	}
	enc, err := crypto.NewCredentialEncryptor(c.CredentialsKey)
	if err != nil {
		return apperrors.Configurationf("credentials key: %v", err)
	}

	for _, f := range fields {
		resolved, err := enc.ResolveValue(*f)
		if err != nil {
			return apperrors.Configurationf("resolve encrypted config value: %v", err)
		}
		*f = resolved
	}
	return nil
}

// Validate checks cross-field constraints after loading. Field-level
// validation belongs to the packages that consume each section.
func (c *Config) Validate() error {
	switch c.Logging.Mode {
	case "", "development", "production":
	default:
		return apperrors.Configurationf("unknown logging mode %q", c.Logging.Mode)
	}

	switch c.Auth.Mode {
	case "", auth.ModeOff, auth.ModeStatic, auth.ModeJWKS:
	default:
		return apperrors.Configurationf("unknown auth mode %q", c.Auth.Mode)
	}

	// Unverified tokens grant whatever principal they claim. Refuse that
	// combination outside development environments.
	if c.Env == "production" && (c.Auth.Mode == "" || c.Auth.Mode == auth.ModeOff) {
		return apperrors.Configurationf("auth mode %q is not allowed when env is production", auth.ModeOff)
	}

	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}
