package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pantrylabs/pantry-agent/internal/secrets"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTLP LogFormat = "otlp"
)

// SecretSourceType represents where the OAuth client secret is read from.
type SecretSourceType string

const (
	SecretSourceConfig  SecretSourceType = "config"
	SecretSourceEnv     SecretSourceType = "env"
	SecretSourceKeyring SecretSourceType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 8080
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigSecretSource    = SecretSourceConfig
	DefaultConfigCallbackHost    = "127.0.0.1"
	DefaultConfigCallbackPort    = 8765
	DefaultConfigCallbackPath    = "/callback"
	DefaultConfigLoginTimeout    = 5 * time.Minute
	DefaultConfigAppScope        = "product.compact"
	DefaultConfigUserScope       = "cart.basic:write profile.compact"
)

// credentialsDir and credentialsFile locate the default credential store
// under the user's home directory.
const (
	credentialsDir  = ".pantry-agent"
	credentialsFile = "tokens.json"
)

// ServerConfig holds the agent HTTP surface configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// APIConfig holds the retailer API endpoint and client credentials.
type APIConfig struct {
	BaseURL  string `json:"base_url" validate:"required,url"`
	ClientID string `json:"client_id" validate:"required"`

	// Secret source - where the OAuth client secret comes from
	SecretSource SecretSourceType `json:"secret_source" validate:"required,oneof=config env keyring"`

	// Source-specific settings (mutually exclusive based on SecretSource)
	ClientSecret string `json:"client_secret,omitempty"` // For config source: inline secret
	SecretEnv    string `json:"secret_env,omitempty"`    // For env source: environment variable name
	KeyringUser  string `json:"keyring_user,omitempty"`  // For keyring source: user identifier
}

// NewSecretSource creates a secrets.Source from the API configuration.
func (a *APIConfig) NewSecretSource() (secrets.Source, error) {
	switch a.SecretSource {
	case SecretSourceConfig:
		return secrets.NewStaticSource(a.ClientSecret)
	case SecretSourceEnv:
		return secrets.NewEnvSource(a.SecretEnv)
	case SecretSourceKeyring:
		return secrets.NewKeyringSource("pantry-agent", a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported secret source: %s", a.SecretSource)
	}
}

// AuthConfig holds the token lifecycle configuration: where user credentials
// persist and how the browser login callback is served.
type AuthConfig struct {
	// CredentialsFile is the JSON file holding the user credential.
	CredentialsFile string `json:"credentials_file"`

	// Loopback callback endpoint for the browser login flow.
	CallbackHost string `json:"callback_host" validate:"hostname_rfc1123|ip"`
	CallbackPort uint16 `json:"callback_port"`
	CallbackPath string `json:"callback_path" validate:"startswith=/"`

	// LoginTimeout bounds how long a pending browser login stays open.
	LoginTimeout time.Duration `json:"login_timeout"`

	// OAuth scopes for the two token flows.
	AppScope  string `json:"app_scope"`
	UserScope string `json:"user_scope"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json otlp"`
	Server    ServerConfig   `json:"server"`
	Shutdown  ShutdownConfig `json:"shutdown"`
	API       APIConfig      `json:"api"`
	Auth      AuthConfig     `json:"auth"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.API.SecretSource == "" {
		c.API.SecretSource = DefaultConfigSecretSource
	}
	if c.Auth.CallbackHost == "" {
		c.Auth.CallbackHost = DefaultConfigCallbackHost
	}
	if c.Auth.CallbackPort == 0 {
		c.Auth.CallbackPort = DefaultConfigCallbackPort
	}
	if c.Auth.CallbackPath == "" {
		c.Auth.CallbackPath = DefaultConfigCallbackPath
	}
	if c.Auth.LoginTimeout == 0 {
		c.Auth.LoginTimeout = DefaultConfigLoginTimeout
	}
	if c.Auth.AppScope == "" {
		c.Auth.AppScope = DefaultConfigAppScope
	}
	if c.Auth.UserScope == "" {
		c.Auth.UserScope = DefaultConfigUserScope
	}

	if c.Auth.CredentialsFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("auth.credentials_file required (auto-detect failed: %w)", err)
		}
		c.Auth.CredentialsFile = filepath.Join(home, credentialsDir, credentialsFile)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// Each secret source requires its own field
	switch c.API.SecretSource {
	case SecretSourceConfig:
		if c.API.ClientSecret == "" {
			return errors.New("client_secret required for config secret source")
		}
	case SecretSourceEnv:
		if c.API.SecretEnv == "" {
			return errors.New("secret_env required for env secret source")
		}
	case SecretSourceKeyring:
		if c.API.KeyringUser == "" {
			return errors.New("keyring_user required for keyring secret source")
		}
	}

	if c.Auth.CredentialsFile == "" {
		return errors.New("credentials_file required")
	}

	return nil
}
