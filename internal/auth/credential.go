package auth

import "time"

// refreshBuffer is how long before expiry a token is treated as expiring.
// Both the app token cache and the user token manager refresh this early so
// a token handed to a caller stays valid for the duration of a request.
const refreshBuffer = 5 * time.Minute

// Credential is the persisted user-level token material, one record per
// installation.
//
// RefreshToken is single-use at the remote authority: once exchanged, the
// previous value must never be sent again, so every refresh overwrites the
// record wholesale with the rotated pair.
type Credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"` // epoch milliseconds
	Scope        string `json:"scope"`
}

// Expiry returns the expiry instant of the access token.
func (c *Credential) Expiry() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}

// Fresh reports whether the access token is still comfortably inside its
// lifetime at the given instant.
func (c *Credential) Fresh(now time.Time) bool {
	return c.Expiry().After(now.Add(refreshBuffer))
}

// expiresAtFrom computes the epoch-millisecond expiry for a grant issued at
// the given instant.
func expiresAtFrom(now time.Time, expiresIn int) int64 {
	return now.Add(time.Duration(expiresIn) * time.Second).UnixMilli()
}
