package grocer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/pantrylabs/pantry-agent/internal/auth"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseTransport http.RoundTripper
	rateLimit     rate.Limit
	rateBurst     int
}

// WithTransport sets a custom base transport underneath the bearer-injecting
// transports. If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithRateLimit overrides the client-side rate gate applied before every
// resource call.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *clientConfig) {
		c.rateLimit = limit
		c.rateBurst = burst
	}
}

// Client is the retailer REST client. Catalog endpoints authenticate with
// the app token, cart and identity endpoints with the user token; both are
// injected by oauth2.Transport from the sources supplied at construction.
type Client struct {
	baseURL string
	app     *http.Client
	user    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// New creates a Client for the API at baseURL.
func New(baseURL string, appSource, userSource oauth2.TokenSource, opts ...Option) *Client {
	cfg := &clientConfig{
		baseTransport: http.DefaultTransport,
		rateLimit:     rate.Every(200 * time.Millisecond),
		rateBurst:     10,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	settings := gobreaker.Settings{
		Name:    "retailer-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A missing login is the caller's condition, not upstream health
			return err == nil || errors.Is(err, auth.ErrAuthRequired)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		app: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &oauth2.Transport{Source: appSource, Base: cfg.baseTransport},
		},
		user: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &oauth2.Transport{Source: userSource, Base: cfg.baseTransport},
		},
		limiter: rate.NewLimiter(cfg.rateLimit, cfg.rateBurst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// APIError is a non-2xx response from a resource endpoint.
type APIError struct {
	StatusCode int
	Code       string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("retailer api: %d %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("retailer api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// do performs one resource request through the rate limiter and circuit
// breaker, decoding a JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, httpClient *http.Client, method, path string, query url.Values, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	_, err = c.breaker.Execute(func() (any, error) {
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, apiError(resp)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
		}
		return nil, nil
	})
	return err
}

// apiError decodes the retailer error envelope, tolerating the shapes the
// API uses across endpoints, and falls back to the bare status.
func apiError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var envelope struct {
		Errors struct {
			Code   string `json:"code"`
			Reason string `json:"reason"`
		} `json:"errors"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Errors.Code != "" || envelope.Errors.Reason != "":
			apiErr.Code = envelope.Errors.Code
			apiErr.Reason = envelope.Errors.Reason
			return apiErr
		case envelope.Error != "":
			apiErr.Code = envelope.Error
			apiErr.Reason = envelope.ErrorDescription
			return apiErr
		}
	}

	if reason := strings.TrimSpace(string(body)); reason != "" {
		apiErr.Reason = reason
	}
	return apiErr
}
