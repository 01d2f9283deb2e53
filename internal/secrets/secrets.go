// Package secrets resolves the retailer API client secret from one of three
// backends with different deployment tradeoffs:
//   - Static: the value inlined in configuration
//   - Env: a named environment variable (external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows
//     Credential Manager, Linux Secret Service)
//
// All backends are read-only; the client secret is provisioned out-of-band.
package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// Source reads a client secret from its backend.
type Source interface {
	// Read returns the secret. Returns error if the secret is missing or
	// empty.
	Read(ctx context.Context) (string, error)
}

// StaticSource returns a value fixed at construction.
type StaticSource struct {
	value string
}

// Compile-time check to ensure StaticSource implements Source
var _ Source = (*StaticSource)(nil)

// NewStaticSource creates a StaticSource. Returns error if the value is
// empty.
func NewStaticSource(value string) (*StaticSource, error) {
	if value == "" {
		return nil, fmt.Errorf("client secret cannot be empty")
	}
	return &StaticSource{value: value}, nil
}

// Read returns the configured value.
func (s *StaticSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.value, nil
}

// EnvSource reads the secret from an environment variable.
type EnvSource struct {
	envKey string
}

// Compile-time check to ensure EnvSource implements Source
var _ Source = (*EnvSource)(nil)

// NewEnvSource creates an EnvSource for the given environment variable.
// Returns error if the variable name is empty or not set in the environment.
func NewEnvSource(envKey string) (*EnvSource, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	if _, exists := os.LookupEnv(envKey); !exists {
		return nil, fmt.Errorf("environment variable %s not set", envKey)
	}

	return &EnvSource{envKey: envKey}, nil
}

// Read returns the secret from the environment variable. Returns error if
// empty.
func (e *EnvSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	secret := os.Getenv(e.envKey)
	if secret == "" {
		return "", fmt.Errorf("environment variable %s is empty", e.envKey)
	}
	return secret, nil
}

// KeyringSource reads the secret from OS-native credential storage.
type KeyringSource struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringSource implements Source
var _ Source = (*KeyringSource)(nil)

// NewKeyringSource creates a KeyringSource using the given service and user
// identifiers.
func NewKeyringSource(service, user string) (*KeyringSource, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringSource{service: service, user: user}, nil
}

// Read returns the secret from the system keyring. Returns error if not
// found or empty.
func (k *KeyringSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	secret, err := keyring.Get(k.service, k.user)
	if err != nil {
		return "", err
	}

	if secret == "" {
		return "", fmt.Errorf("empty secret in keyring for service %s, user %s", k.service, k.user)
	}

	return secret, nil
}
