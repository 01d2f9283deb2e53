package auth

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// fakeExchanger is a scriptable TokenExchanger that records calls per grant.
type fakeExchanger struct {
	mu sync.Mutex

	clientCredsGrant *TokenGrant
	clientCredsErr   error
	clientCredsCalls int
	lastScope        string

	authCodeGrant   *TokenGrant
	authCodeErr     error
	authCodeCalls   int
	lastCode        string
	lastRedirectURI string

	refreshGrant     *TokenGrant
	refreshErr       error
	refreshCalls     int
	lastRefreshToken string

	// delay is applied before every exchange to widen race windows in
	// concurrency tests.
	delay time.Duration
}

var _ TokenExchanger = (*fakeExchanger)(nil)

func (f *fakeExchanger) ExchangeClientCredentials(ctx context.Context, scope string) (*TokenGrant, error) {
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.clientCredsCalls++
	f.lastScope = scope
	if f.clientCredsErr != nil {
		return nil, f.clientCredsErr
	}
	grant := *f.clientCredsGrant
	return &grant, nil
}

func (f *fakeExchanger) ExchangeAuthorizationCode(ctx context.Context, code, redirectURI string) (*TokenGrant, error) {
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCodeCalls++
	f.lastCode = code
	f.lastRedirectURI = redirectURI
	if f.authCodeErr != nil {
		return nil, f.authCodeErr
	}
	grant := *f.authCodeGrant
	return &grant, nil
}

func (f *fakeExchanger) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	f.lastRefreshToken = refreshToken
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	grant := *f.refreshGrant
	return &grant, nil
}

func (f *fakeExchanger) AuthorizationURL(redirectURI, scope, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", scope)
	q.Set("state", state)
	return "https://auth.example.test/authorize?" + q.Encode()
}

func (f *fakeExchanger) counts() (clientCreds, authCode, refresh int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clientCredsCalls, f.authCodeCalls, f.refreshCalls
}
