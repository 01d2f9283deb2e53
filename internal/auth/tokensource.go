package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// AppTokenSource adapts the app token cache to oauth2.TokenSource so catalog
// requests can inject bearer tokens through oauth2.Transport. The scope is
// fixed at construction; see AppTokenCache for the single-entry cache
// semantics.
func AppTokenSource(cache *AppTokenCache, scope string) oauth2.TokenSource {
	return &appTokenSource{cache: cache, scope: scope}
}

type appTokenSource struct {
	cache *AppTokenCache
	scope string
}

// Compile-time check to ensure appTokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*appTokenSource)(nil)

func (s *appTokenSource) Token() (*oauth2.Token, error) {
	// oauth2.TokenSource carries no context; exchanges run to completion
	// once issued.
	token, err := s.cache.Token(context.Background(), s.scope)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// UserTokenSource adapts the user token manager to oauth2.TokenSource. When
// no usable user token exists it fails with ErrAuthRequired so callers can
// offer interactive login instead of reporting a generic error.
func UserTokenSource(manager *UserTokenManager) oauth2.TokenSource {
	return &userTokenSource{manager: manager}
}

type userTokenSource struct {
	manager *UserTokenManager
}

// Compile-time check to ensure userTokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*userTokenSource)(nil)

func (s *userTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.manager.Token(context.Background())
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrAuthRequired
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
