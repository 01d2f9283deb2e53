package grocer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pantrylabs/pantry-agent/internal/auth"
)

// Token and authorization endpoint paths, relative to the API base URL.
const (
	tokenPath     = "/v1/connect/oauth2/token"
	authorizePath = "/v1/connect/oauth2/authorize"
)

// OAuthOption configures an OAuthClient.
type OAuthOption func(*OAuthClient)

// WithOAuthTransport sets a custom base transport for token endpoint
// requests. If not provided, http.DefaultTransport is used.
func WithOAuthTransport(transport http.RoundTripper) OAuthOption {
	return func(c *OAuthClient) {
		c.httpClient.Transport = transport
	}
}

// OAuthClient speaks the retailer's token endpoint: standard form-encoded
// grant exchanges authenticated with HTTP Basic client credentials.
type OAuthClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// Compile-time check to ensure OAuthClient implements auth.TokenExchanger
var _ auth.TokenExchanger = (*OAuthClient)(nil)

// NewOAuthClient creates a token endpoint client for the API at baseURL.
func NewOAuthClient(baseURL, clientID, clientSecret string, opts ...OAuthOption) *OAuthClient {
	c := &OAuthClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // Bounds exchanges even during shutdown
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenResponse is the token endpoint's success payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// tokenErrorResponse is the token endpoint's RFC 6749 failure payload.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeClientCredentials obtains an app-level token for the scope.
func (c *OAuthClient) ExchangeClientCredentials(ctx context.Context, scope string) (*auth.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", auth.GrantClientCredentials)
	form.Set("scope", scope)
	return c.exchange(ctx, auth.GrantClientCredentials, form)
}

// ExchangeAuthorizationCode trades a login callback code for the initial
// user token pair.
func (c *OAuthClient) ExchangeAuthorizationCode(ctx context.Context, code, redirectURI string) (*auth.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", auth.GrantAuthorizationCode)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	return c.exchange(ctx, auth.GrantAuthorizationCode, form)
}

// ExchangeRefreshToken rotates a refresh token.
func (c *OAuthClient) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*auth.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", auth.GrantRefreshToken)
	form.Set("refresh_token", refreshToken)
	return c.exchange(ctx, auth.GrantRefreshToken, form)
}

// AuthorizationURL builds the consent URL for the browser step.
func (c *OAuthClient) AuthorizationURL(redirectURI, scope, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", scope)
	if state != "" {
		q.Set("state", state)
	}
	return c.baseURL + authorizePath + "?" + q.Encode()
}

// exchange POSTs the form to the token endpoint and decodes the grant.
// Non-2xx responses become *auth.ExchangeError carrying the authority's
// error code and description when provided.
func (c *OAuthClient) exchange(ctx context.Context, grantType string, form url.Values) (*auth.TokenGrant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, tokenError(grantType, resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	if tr.ExpiresIn <= 0 {
		return nil, fmt.Errorf("token response has invalid expires_in %d", tr.ExpiresIn)
	}

	return &auth.TokenGrant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
	}, nil
}

// tokenError maps a non-2xx token endpoint response onto auth.ExchangeError,
// preferring the RFC 6749 payload and falling back to the raw body, then to
// the bare status.
func tokenError(grantType string, status int, body []byte) *auth.ExchangeError {
	xerr := &auth.ExchangeError{Grant: grantType, StatusCode: status}

	var te tokenErrorResponse
	if err := json.Unmarshal(body, &te); err == nil && te.Error != "" {
		xerr.Code = te.Error
		xerr.Description = te.ErrorDescription
		return xerr
	}

	if desc := strings.TrimSpace(string(body)); desc != "" && len(desc) <= 512 {
		xerr.Description = desc
	}
	return xerr
}
