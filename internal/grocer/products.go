package grocer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Product is a catalog item. Price and fulfillment are per-store and only
// populated when the query carries a location id.
type Product struct {
	ProductID   string        `json:"productId"`
	UPC         string        `json:"upc"`
	Brand       string        `json:"brand"`
	Description string        `json:"description"`
	Categories  []string      `json:"categories"`
	Items       []ProductItem `json:"items"`
}

// ProductItem is one sellable variant of a product.
type ProductItem struct {
	Size        string      `json:"size"`
	Price       *Price      `json:"price,omitempty"`
	Fulfillment Fulfillment `json:"fulfillment"`
}

// Price in the store's local currency.
type Price struct {
	Regular float64 `json:"regular"`
	Promo   float64 `json:"promo"`
}

// Fulfillment flags how a variant can be obtained at the queried store.
type Fulfillment struct {
	Curbside   bool `json:"curbside"`
	Delivery   bool `json:"delivery"`
	InStore    bool `json:"inStore"`
	ShipToHome bool `json:"shipToHome"`
}

// ProductQuery shapes a catalog search. Term is required; LocationID enables
// price and availability data.
type ProductQuery struct {
	Term       string
	LocationID string
	Brand      string
	Limit      int
	Start      int
}

// SearchProducts searches the catalog. Catalog endpoint, app token.
func (c *Client) SearchProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	if q.Term == "" {
		return nil, fmt.Errorf("search term is required")
	}

	params := url.Values{}
	params.Set("filter.term", q.Term)
	if q.LocationID != "" {
		params.Set("filter.locationId", q.LocationID)
	}
	if q.Brand != "" {
		params.Set("filter.brand", q.Brand)
	}
	if q.Limit > 0 {
		params.Set("filter.limit", strconv.Itoa(q.Limit))
	}
	if q.Start > 0 {
		params.Set("filter.start", strconv.Itoa(q.Start))
	}

	var envelope struct {
		Data []Product `json:"data"`
	}
	if err := c.do(ctx, c.app, http.MethodGet, "/v1/products", params, nil, &envelope); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return envelope.Data, nil
}

// Product fetches one catalog item by id, optionally scoped to a store for
// price and availability. Catalog endpoint, app token.
func (c *Client) Product(ctx context.Context, productID, locationID string) (*Product, error) {
	if productID == "" {
		return nil, fmt.Errorf("product id is required")
	}

	params := url.Values{}
	if locationID != "" {
		params.Set("filter.locationId", locationID)
	}

	var envelope struct {
		Data Product `json:"data"`
	}
	if err := c.do(ctx, c.app, http.MethodGet, "/v1/products/"+url.PathEscape(productID), params, nil, &envelope); err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	return &envelope.Data, nil
}
