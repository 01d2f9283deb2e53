package grocer

import (
	"context"
	"fmt"
	"net/http"
)

// CartItem is one cart mutation entry. Modality selects the fulfillment
// channel (e.g. PICKUP, DELIVERY); the retailer default applies when empty.
type CartItem struct {
	UPC      string `json:"upc"`
	Quantity int    `json:"quantity"`
	Modality string `json:"modality,omitempty"`
}

// AddToCart adds items to the authenticated user's cart. Requires a user
// token; callers without one receive auth.ErrAuthRequired.
func (c *Client) AddToCart(ctx context.Context, items []CartItem) error {
	if len(items) == 0 {
		return fmt.Errorf("no items to add")
	}
	for i, item := range items {
		if item.UPC == "" {
			return fmt.Errorf("item %d: upc is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i)
		}
	}

	payload := struct {
		Items []CartItem `json:"items"`
	}{Items: items}

	if err := c.do(ctx, c.user, http.MethodPut, "/v1/cart/add", nil, payload, nil); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}
