package grocer

import (
	"context"
	"fmt"
	"net/http"
)

// Profile is the authenticated user's identity record. The retailer exposes
// only an opaque id.
type Profile struct {
	ID string `json:"id"`
}

// Profile fetches the authenticated user's profile. Requires a user token;
// callers without one receive auth.ErrAuthRequired.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var envelope struct {
		Data Profile `json:"data"`
	}
	if err := c.do(ctx, c.user, http.MethodGet, "/v1/identity/profile", nil, nil, &envelope); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &envelope.Data, nil
}
