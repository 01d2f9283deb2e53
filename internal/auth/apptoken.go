package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AppTokenCache caches the single app-level (client-credentials) token for
// the process. There is one cached pair regardless of scope: the cache holds
// whatever scope was last requested, so callers mixing scopes will thrash it.
// All catalog calls share one scope in practice, which is the deployment this
// matches.
type AppTokenCache struct {
	exchanger TokenExchanger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewAppTokenCache creates an empty cache backed by the given exchanger.
func NewAppTokenCache(exchanger TokenExchanger) *AppTokenCache {
	return &AppTokenCache{exchanger: exchanger}
}

// Token returns a usable app-level access token for the scope, reusing the
// cached one until it is within five minutes of expiry. Concurrent callers
// finding a stale cache are serialized so only one exchange is issued.
// Exchange failures propagate unmodified and leave the cache untouched.
func (c *AppTokenCache) Token(ctx context.Context, scope string) (string, error) {
	c.mu.RLock()
	if c.fresh(time.Now()) {
		token := c.token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock
	if c.fresh(time.Now()) {
		return c.token, nil
	}

	grant, err := c.exchanger.ExchangeClientCredentials(ctx, scope)
	if err != nil {
		return "", err
	}

	c.token = grant.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	slog.DebugContext(ctx, "app token refreshed", "scope", scope, "expires_at", c.expiresAt)

	return c.token, nil
}

// fresh reports whether the cached token is usable at the given instant.
// Callers must hold at least a read lock.
func (c *AppTokenCache) fresh(now time.Time) bool {
	return c.token != "" && c.expiresAt.After(now.Add(refreshBuffer))
}
