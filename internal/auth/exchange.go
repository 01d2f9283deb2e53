package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrAuthRequired signals that no usable user token exists and none can be
// derived locally. Upstream layers should offer the interactive login flow
// instead of surfacing a raw error to the end user.
var ErrAuthRequired = errors.New("authentication required")

// Grant types used by the token-exchange capability.
const (
	GrantClientCredentials = "client_credentials"
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// TokenGrant is the result of a successful token-endpoint exchange.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // seconds until expiry, relative to issuance
}

// TokenExchanger performs the OAuth2 grant exchanges against the remote
// authority and builds the user-facing authorization URL.
type TokenExchanger interface {
	// ExchangeClientCredentials obtains an app-level token for the scope.
	ExchangeClientCredentials(ctx context.Context, scope string) (*TokenGrant, error)

	// ExchangeAuthorizationCode trades a login callback code for the initial
	// user token pair. The redirect URI must match the one embedded in the
	// authorization request.
	ExchangeAuthorizationCode(ctx context.Context, code, redirectURI string) (*TokenGrant, error)

	// ExchangeRefreshToken rotates a refresh token. The presented token is
	// consumed by the authority whether or not the caller persists the
	// result.
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*TokenGrant, error)

	// AuthorizationURL builds the browser URL for the consent step.
	AuthorizationURL(redirectURI, scope, state string) string
}

// ExchangeError is a definitive rejection from the token endpoint (non-2xx).
// Code and Description carry the authority-provided RFC 6749 error fields
// when present.
type ExchangeError struct {
	Grant       string
	StatusCode  int
	Code        string
	Description string
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("%s exchange rejected: %s: %s", e.Grant, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s exchange rejected: %s", e.Grant, e.Code)
	default:
		return fmt.Sprintf("%s exchange rejected: status %d", e.Grant, e.StatusCode)
	}
}
