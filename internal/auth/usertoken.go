package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// UserTokenManager produces a usable user-level access token from persisted
// state, refreshing and persisting transparently when the stored one is
// expiring.
//
// A single mutex serializes the read-refresh-write sequence in-process:
// refresh tokens are single-use at the authority, so letting two goroutines
// race the same refresh would burn a valid credential for no gain. The file
// itself is still shared with other processes last-writer-wins; that race is
// accepted.
type UserTokenManager struct {
	store     CredentialStore
	exchanger TokenExchanger

	mu sync.Mutex
}

// NewUserTokenManager creates a manager over the given store and exchanger.
func NewUserTokenManager(store CredentialStore, exchanger TokenExchanger) *UserTokenManager {
	return &UserTokenManager{store: store, exchanger: exchanger}
}

// Token returns the current user access token, or "" when no usable token
// exists and interactive login is required.
//
// A stored token more than five minutes from expiry is returned as-is with no
// network traffic. An expiring token with a refresh token is exchanged; the
// rotated pair is persisted before the new access token is returned. A
// refresh rejected by the authority clears the stored credential entirely
// (fail closed: a rejected refresh token can never be retried) and yields "".
// Transport-level exchange failures and storage write/clear failures
// propagate as errors.
func (m *UserTokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Read(ctx)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", nil
	}

	if cred.Fresh(time.Now()) {
		return cred.AccessToken, nil
	}

	if cred.RefreshToken == "" {
		// Expiring and unrefreshable. The record stays in place: missing a
		// refresh token is not a reason to destroy state, the next login
		// overwrites it anyway.
		return "", nil
	}

	grant, err := m.exchanger.ExchangeRefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		var xerr *ExchangeError
		if errors.As(err, &xerr) {
			slog.WarnContext(ctx, "refresh token rejected, clearing stored credential", "error", err)
			if clearErr := m.store.Clear(ctx); clearErr != nil {
				return "", clearErr
			}
			return "", nil
		}
		// The exchange may never have reached the authority; keep the
		// credential for a later retry.
		return "", fmt.Errorf("refresh user token: %w", err)
	}

	next := &Credential{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    expiresAtFrom(time.Now(), grant.ExpiresIn),
		Scope:        cred.Scope,
	}
	if err := m.store.Write(ctx, next); err != nil {
		return "", fmt.Errorf("persist refreshed credential: %w", err)
	}

	slog.InfoContext(ctx, "user token refreshed", "expires_at", next.Expiry())
	return next.AccessToken, nil
}

// Authenticated reports whether a usable user token exists. This is not a
// pure read: it may refresh and persist a new pair, or clear a credential
// whose refresh token was rejected.
func (m *UserTokenManager) Authenticated(ctx context.Context) (bool, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// CompleteLogin exchanges an authorization code for the initial token pair
// and persists it with the granted scope. Exchange errors propagate
// unmodified (an expired or already-consumed code is the authority's call,
// not ours to mask).
func (m *UserTokenManager) CompleteLogin(ctx context.Context, code, redirectURI, scope string) error {
	grant, err := m.exchanger.ExchangeAuthorizationCode(ctx, code, redirectURI)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cred := &Credential{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    expiresAtFrom(time.Now(), grant.ExpiresIn),
		Scope:        scope,
	}
	if err := m.store.Write(ctx, cred); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	slog.InfoContext(ctx, "login complete, credential stored", "scope", scope, "expires_at", cred.Expiry())
	return nil
}

// Logout removes the stored credential. Logging out while not logged in is a
// no-op.
func (m *UserTokenManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.Clear(ctx)
}
