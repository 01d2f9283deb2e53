package grocer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Location is a physical store.
type Location struct {
	LocationID  string      `json:"locationId"`
	Chain       string      `json:"chain"`
	Name        string      `json:"name"`
	Phone       string      `json:"phone"`
	Address     Address     `json:"address"`
	Geolocation Geolocation `json:"geolocation"`
}

// Address is a store's street address.
type Address struct {
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zipCode"`
}

// Geolocation is a store's coordinates.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationQuery shapes a store search. ZipCode is required; the remaining
// fields narrow or page the result.
type LocationQuery struct {
	ZipCode     string
	RadiusMiles int
	Chain       string
	Limit       int
}

// SearchLocations finds stores near a zip code. Catalog endpoint, app token.
func (c *Client) SearchLocations(ctx context.Context, q LocationQuery) ([]Location, error) {
	if q.ZipCode == "" {
		return nil, fmt.Errorf("zip code is required")
	}

	params := url.Values{}
	params.Set("filter.zipCode.near", q.ZipCode)
	if q.RadiusMiles > 0 {
		params.Set("filter.radiusInMiles", strconv.Itoa(q.RadiusMiles))
	}
	if q.Chain != "" {
		params.Set("filter.chain", q.Chain)
	}
	if q.Limit > 0 {
		params.Set("filter.limit", strconv.Itoa(q.Limit))
	}

	var envelope struct {
		Data []Location `json:"data"`
	}
	if err := c.do(ctx, c.app, http.MethodGet, "/v1/locations", params, nil, &envelope); err != nil {
		return nil, fmt.Errorf("search locations: %w", err)
	}
	return envelope.Data, nil
}

// Location fetches one store by id. Catalog endpoint, app token.
func (c *Client) Location(ctx context.Context, locationID string) (*Location, error) {
	if locationID == "" {
		return nil, fmt.Errorf("location id is required")
	}

	var envelope struct {
		Data Location `json:"data"`
	}
	if err := c.do(ctx, c.app, http.MethodGet, "/v1/locations/"+url.PathEscape(locationID), nil, nil, &envelope); err != nil {
		return nil, fmt.Errorf("get location %s: %w", locationID, err)
	}
	return &envelope.Data, nil
}
