package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		API: APIConfig{
			BaseURL:      "https://api.grocer.example",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
		},
	}
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	require.Equal(t, LogFormatText, cfg.LogFormat)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, uint16(8080), cfg.Server.Port)
	require.Equal(t, 5*time.Second, cfg.Shutdown.Timeout)
	require.Equal(t, SecretSourceConfig, cfg.API.SecretSource)
	require.Equal(t, "127.0.0.1", cfg.Auth.CallbackHost)
	require.Equal(t, uint16(8765), cfg.Auth.CallbackPort)
	require.Equal(t, "/callback", cfg.Auth.CallbackPath)
	require.Equal(t, 5*time.Minute, cfg.Auth.LoginTimeout)
	require.Equal(t, "product.compact", cfg.Auth.AppScope)
	require.Equal(t, "cart.basic:write profile.compact", cfg.Auth.UserScope)
	wantSuffix := filepath.Join(".pantry-agent", "tokens.json")
	require.True(t, strings.HasSuffix(cfg.Auth.CredentialsFile, wantSuffix),
		"credentials file %q should end with %q", cfg.Auth.CredentialsFile, wantSuffix)
}

func TestApplyDefaultsPreservesValues(t *testing.T) {
	cfg := &Config{
		LogFormat: LogFormatJSON,
		Server:    ServerConfig{Host: "0.0.0.0", Port: 9999},
		Auth: AuthConfig{
			CredentialsFile: "/var/lib/pantry/tokens.json",
			LoginTimeout:    time.Minute,
		},
	}
	require.NoError(t, cfg.ApplyDefaults())

	require.Equal(t, LogFormatJSON, cfg.LogFormat)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, uint16(9999), cfg.Server.Port)
	require.Equal(t, "/var/lib/pantry/tokens.json", cfg.Auth.CredentialsFile)
	require.Equal(t, time.Minute, cfg.Auth.LoginTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: "BaseURL",
		},
		{
			name:    "base url not a url",
			mutate:  func(c *Config) { c.API.BaseURL = "not a url" },
			wantErr: "BaseURL",
		},
		{
			name:    "missing client id",
			mutate:  func(c *Config) { c.API.ClientID = "" },
			wantErr: "ClientID",
		},
		{
			name:    "unknown secret source",
			mutate:  func(c *Config) { c.API.SecretSource = "vault" },
			wantErr: "SecretSource",
		},
		{
			name:    "config source without secret",
			mutate:  func(c *Config) { c.API.ClientSecret = "" },
			wantErr: "client_secret required",
		},
		{
			name: "env source without variable name",
			mutate: func(c *Config) {
				c.API.SecretSource = SecretSourceEnv
				c.API.SecretEnv = ""
			},
			wantErr: "secret_env required",
		},
		{
			name: "keyring source without user",
			mutate: func(c *Config) {
				c.API.SecretSource = SecretSourceKeyring
				c.API.KeyringUser = ""
			},
			wantErr: "keyring_user required",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.LogFormat = "yaml" },
			wantErr: "LogFormat",
		},
		{
			name:    "callback path without leading slash",
			mutate:  func(c *Config) { c.Auth.CallbackPath = "callback" },
			wantErr: "CallbackPath",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewSecretSource(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		api := &APIConfig{SecretSource: SecretSourceConfig, ClientSecret: "s3cret"}
		source, err := api.NewSecretSource()
		require.NoError(t, err)

		secret, err := source.Read(context.Background())
		require.NoError(t, err)
		require.Equal(t, "s3cret", secret)
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("PANTRY_TEST_SECRET", "from-env")

		api := &APIConfig{SecretSource: SecretSourceEnv, SecretEnv: "PANTRY_TEST_SECRET"}
		source, err := api.NewSecretSource()
		require.NoError(t, err)

		secret, err := source.Read(context.Background())
		require.NoError(t, err)
		require.Equal(t, "from-env", secret)
	})

	t.Run("unsupported", func(t *testing.T) {
		api := &APIConfig{SecretSource: "vault"}
		_, err := api.NewSecretSource()
		require.ErrorContains(t, err, "unsupported secret source")
	})
}
