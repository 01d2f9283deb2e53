package grocer

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/pantrylabs/pantry-agent/internal/auth"
)

// staticTokenSource returns a fixed token or a fixed error.
type staticTokenSource struct {
	token string
	err   error
}

func (s *staticTokenSource) Token() (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL,
		&staticTokenSource{token: "app-token"},
		&staticTokenSource{token: "user-token"},
		WithRateLimit(rate.Inf, 1),
	)
}

func TestSearchProductsRequest(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{"productId": "p1", "description": "Oat Milk", "brand": "Oaty"}]}`))
	})

	products, err := client.SearchProducts(t.Context(), ProductQuery{Term: "oat milk", LocationID: "store-1", Limit: 5})
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}

	if gotPath != "/v1/products" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer app-token" {
		t.Errorf("catalog call must use the app token, got %q", gotAuth)
	}
	if got := gotQuery["filter.term"]; len(got) != 1 || got[0] != "oat milk" {
		t.Errorf("filter.term = %v", got)
	}
	if got := gotQuery["filter.locationId"]; len(got) != 1 || got[0] != "store-1" {
		t.Errorf("filter.locationId = %v", got)
	}
	if got := gotQuery["filter.limit"]; len(got) != 1 || got[0] != "5" {
		t.Errorf("filter.limit = %v", got)
	}

	if len(products) != 1 || products[0].ProductID != "p1" || products[0].Brand != "Oaty" {
		t.Errorf("products = %+v", products)
	}
}

func TestSearchProductsRequiresTerm(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	if _, err := client.SearchProducts(t.Context(), ProductQuery{}); err == nil {
		t.Fatal("expected validation error")
	}
	if calls != 0 {
		t.Errorf("validation failures must not reach the API, got %d calls", calls)
	}
}

func TestSearchLocationsRequest(t *testing.T) {
	var gotQuery map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{"locationId": "store-1", "name": "Midtown Market"}]}`))
	})

	locations, err := client.SearchLocations(t.Context(), LocationQuery{ZipCode: "30308", RadiusMiles: 10})
	if err != nil {
		t.Fatalf("SearchLocations: %v", err)
	}

	if got := gotQuery["filter.zipCode.near"]; len(got) != 1 || got[0] != "30308" {
		t.Errorf("filter.zipCode.near = %v", got)
	}
	if got := gotQuery["filter.radiusInMiles"]; len(got) != 1 || got[0] != "10" {
		t.Errorf("filter.radiusInMiles = %v", got)
	}
	if len(locations) != 1 || locations[0].Name != "Midtown Market" {
		t.Errorf("locations = %+v", locations)
	}
}

func TestAddToCartRequest(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody struct {
		Items []CartItem `json:"items"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.AddToCart(t.Context(), []CartItem{{UPC: "0001111041700", Quantity: 2, Modality: "PICKUP"}})
	if err != nil {
		t.Fatalf("AddToCart: %v", err)
	}

	if gotMethod != http.MethodPut || gotPath != "/v1/cart/add" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer user-token" {
		t.Errorf("cart call must use the user token, got %q", gotAuth)
	}
	if len(gotBody.Items) != 1 || gotBody.Items[0].UPC != "0001111041700" || gotBody.Items[0].Quantity != 2 {
		t.Errorf("items = %+v", gotBody.Items)
	}
}

func TestAddToCartValidation(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	tests := []struct {
		name  string
		items []CartItem
	}{
		{"no items", nil},
		{"missing upc", []CartItem{{Quantity: 1}}},
		{"zero quantity", []CartItem{{UPC: "123"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.AddToCart(t.Context(), tt.items); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if calls != 0 {
		t.Errorf("validation failures must not reach the API, got %d calls", calls)
	}
}

func TestProfileRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/identity/profile" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("identity call must use the user token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"id": "prof-1"}}`))
	})

	profile, err := client.Profile(t.Context())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.ID != "prof-1" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors": {"code": "FORBIDDEN", "reason": "scope product.compact required"}}`))
	})

	_, err := client.SearchProducts(t.Context(), ProductQuery{Term: "milk"})
	if err == nil {
		t.Fatal("expected an API error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %T is not *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Code != "FORBIDDEN" {
		t.Errorf("api error = %+v", apiErr)
	}
	if apiErr.Reason != "scope product.compact required" {
		t.Errorf("reason = %q", apiErr.Reason)
	}
}

func TestUserAuthRequiredPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent without a user token")
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL,
		&staticTokenSource{token: "app-token"},
		&staticTokenSource{err: auth.ErrAuthRequired},
		WithRateLimit(rate.Inf, 1),
	)

	err := client.AddToCart(t.Context(), []CartItem{{UPC: "123", Quantity: 1}})
	if !errors.Is(err, auth.ErrAuthRequired) {
		t.Fatalf("err = %v, want auth.ErrAuthRequired in chain", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	for range 5 {
		if _, err := client.SearchProducts(t.Context(), ProductQuery{Term: "milk"}); err == nil {
			t.Fatal("expected upstream failure")
		}
	}

	_, err := client.SearchProducts(t.Context(), ProductQuery{Term: "milk"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want circuit breaker open", err)
	}
	if calls != 5 {
		t.Errorf("upstream saw %d calls, want 5 before the breaker opens", calls)
	}
}

func TestAuthRequiredDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL,
		&staticTokenSource{token: "app-token"},
		&staticTokenSource{err: auth.ErrAuthRequired},
		WithRateLimit(rate.Inf, 1),
	)

	for range 10 {
		if _, err := client.Profile(t.Context()); !errors.Is(err, auth.ErrAuthRequired) {
			t.Fatalf("err = %v, want auth.ErrAuthRequired in chain", err)
		}
	}

	// Ten auth-required failures later the breaker is still closed
	if _, err := client.SearchProducts(t.Context(), ProductQuery{Term: "milk"}); err != nil {
		t.Fatalf("catalog call failed after auth-required noise: %v", err)
	}
}
