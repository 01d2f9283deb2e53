package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pantrylabs/pantry-agent/internal/auth"
	"github.com/pantrylabs/pantry-agent/internal/grocer"
)

// errUnknownTool signals a tools/call naming a tool that isn't registered.
// The server maps it to a JSON-RPC invalid-params error.
var errUnknownTool = errors.New("unknown tool")

// GroceryAPI is the slice of the retailer client the tools need.
type GroceryAPI interface {
	SearchProducts(ctx context.Context, q grocer.ProductQuery) ([]grocer.Product, error)
	Product(ctx context.Context, productID, locationID string) (*grocer.Product, error)
	SearchLocations(ctx context.Context, q grocer.LocationQuery) ([]grocer.Location, error)
	Location(ctx context.Context, locationID string) (*grocer.Location, error)
	AddToCart(ctx context.Context, items []grocer.CartItem) error
	Profile(ctx context.Context) (*grocer.Profile, error)
}

// Authenticator reports and clears the stored user credential.
type Authenticator interface {
	Authenticated(ctx context.Context) (bool, error)
	Logout(ctx context.Context) error
}

// LoginStarter begins a browser login and hands back the URL to visit.
type LoginStarter interface {
	StartLogin(ctx context.Context) (*auth.LoginSession, error)
}

// Tool is a single callable exposed over tools/list and tools/call.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     func(ctx context.Context, args json.RawMessage) (string, error)
}

// toolDescriptor is the wire shape of a tool in tools/list results.
type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// toolResult is the wire shape of a tools/call result. Execution failures
// are reported in-band with IsError rather than as protocol errors.
type toolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) *toolResult {
	return &toolResult{Content: []toolContent{{Type: "text", Text: text}}}
}

func errorResult(text string) *toolResult {
	return &toolResult{Content: []toolContent{{Type: "text", Text: text}}, IsError: true}
}

// Toolset holds the registered tools in a stable listing order.
type Toolset struct {
	tools  []Tool
	byName map[string]Tool
}

// NewToolset registers the grocery and auth lifecycle tools.
func NewToolset(api GroceryAPI, authn Authenticator, login LoginStarter) *Toolset {
	ts := &Toolset{byName: make(map[string]Tool)}

	ts.register(Tool{
		Name:        "search_products",
		Description: "Search the grocer catalog for products by keyword. Returns product ids, descriptions, brands, sizes and prices.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"term": {"type": "string", "description": "Search keywords, for example: oat milk"},
				"locationId": {"type": "string", "description": "Store id to resolve prices and availability against"},
				"brand": {"type": "string", "description": "Restrict results to one brand"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50}
			},
			"required": ["term"]
		}`),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var p struct {
				Term       string `json:"term"`
				LocationID string `json:"locationId"`
				Brand      string `json:"brand"`
				Limit      int    `json:"limit"`
			}
			if err := unmarshalArgs(args, &p); err != nil {
				return "", err
			}
			products, err := api.SearchProducts(ctx, grocer.ProductQuery{
				Term:       p.Term,
				LocationID: p.LocationID,
				Brand:      p.Brand,
				Limit:      p.Limit,
			})
			if err != nil {
				return "", err
			}
			return marshalText(products)
		},
	})

	ts.register(Tool{
		Name:        "get_product",
		Description: "Fetch one product by its product id, optionally priced for a specific store.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"productId": {"type": "string"},
				"locationId": {"type": "string", "description": "Store id to resolve prices and availability against"}
			},
			"required": ["productId"]
		}`),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var p struct {
				ProductID  string `json:"productId"`
				LocationID string `json:"locationId"`
			}
			if err := unmarshalArgs(args, &p); err != nil {
				return "", err
			}
			product, err := api.Product(ctx, p.ProductID, p.LocationID)
			if err != nil {
				return "", err
			}
			return marshalText(product)
		},
	})

	ts.register(Tool{
		Name:        "search_locations",
		Description: "Find grocer stores near a zip code. Returns store ids, names, addresses and phone numbers.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"zipCode": {"type": "string"},
				"radiusMiles": {"type": "integer", "minimum": 1, "maximum": 100},
				"chain": {"type": "string"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50}
			},
			"required": ["zipCode"]
		}`),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var p struct {
				ZipCode     string `json:"zipCode"`
				RadiusMiles int    `json:"radiusMiles"`
				Chain       string `json:"chain"`
				Limit       int    `json:"limit"`
			}
			if err := unmarshalArgs(args, &p); err != nil {
				return "", err
			}
			locations, err := api.SearchLocations(ctx, grocer.LocationQuery{
				ZipCode:     p.ZipCode,
				RadiusMiles: p.RadiusMiles,
				Chain:       p.Chain,
				Limit:       p.Limit,
			})
			if err != nil {
				return "", err
			}
			return marshalText(locations)
		},
	})

	ts.register(Tool{
		Name:        "get_location",
		Description: "Fetch one grocer store by its location id.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"locationId": {"type": "string"}
			},
			"required": ["locationId"]
		}`),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var p struct {
				LocationID string `json:"locationId"`
			}
			if err := unmarshalArgs(args, &p); err != nil {
				return "", err
			}
			location, err := api.Location(ctx, p.LocationID)
			if err != nil {
				return "", err
			}
			return marshalText(location)
		},
	})

	ts.register(Tool{
		Name:        "add_to_cart",
		Description: "Add items to the signed-in shopper's cart. Requires a connected grocer account.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"items": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"upc": {"type": "string"},
							"quantity": {"type": "integer", "minimum": 1},
							"modality": {"type": "string", "enum": ["PICKUP", "DELIVERY"]}
						},
						"required": ["upc", "quantity"]
					}
				}
			},
			"required": ["items"]
		}`),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var p struct {
				Items []grocer.CartItem `json:"items"`
			}
			if err := unmarshalArgs(args, &p); err != nil {
				return "", err
			}
			if err := api.AddToCart(ctx, p.Items); err != nil {
				return "", err
			}
			return fmt.Sprintf("Added %d item(s) to the cart.", len(p.Items)), nil
		},
	})

	ts.register(Tool{
		Name:        "get_profile",
		Description: "Fetch the signed-in shopper's profile id. Requires a connected grocer account.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			profile, err := api.Profile(ctx)
			if err != nil {
				return "", err
			}
			return marshalText(profile)
		},
	})

	ts.register(Tool{
		Name:        "auth_status",
		Description: "Report whether a grocer account is currently connected.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			ok, err := authn.Authenticated(ctx)
			if err != nil {
				return "", err
			}
			return marshalText(map[string]bool{"authenticated": ok})
		},
	})

	ts.register(Tool{
		Name:        "start_login",
		Description: "Begin the browser sign-in to connect a grocer account. Returns the URL the user must open.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			session, err := login.StartLogin(ctx)
			if err != nil {
				return "", err
			}
			return marshalText(map[string]string{
				"authorizationUrl": session.AuthorizationURL,
				"instructions":     "Have the user open the URL in a browser and complete the grocer sign-in, then retry the original request.",
			})
		},
	})

	ts.register(Tool{
		Name:        "logout",
		Description: "Disconnect the grocer account and delete the stored credential.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			if err := authn.Logout(ctx); err != nil {
				return "", err
			}
			return "Stored grocer credentials cleared.", nil
		},
	})

	return ts
}

func (ts *Toolset) register(t Tool) {
	ts.tools = append(ts.tools, t)
	ts.byName[t.Name] = t
}

// Descriptors returns the tools/list wire representation.
func (ts *Toolset) Descriptors() []toolDescriptor {
	out := make([]toolDescriptor, 0, len(ts.tools))
	for _, t := range ts.tools {
		out = append(out, toolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}

// Call runs the named tool. Execution failures come back as isError results;
// the only error return is errUnknownTool.
func (ts *Toolset) Call(ctx context.Context, name string, args json.RawMessage) (*toolResult, error) {
	tool, ok := ts.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}

	text, err := tool.Handler(ctx, args)
	if err != nil {
		if errors.Is(err, auth.ErrAuthRequired) {
			return errorResult("No grocer account is connected. Call the start_login tool, have the user open the returned URL, and retry once sign-in completes."), nil
		}
		slog.WarnContext(ctx, "tool call failed", "tool", name, "error", err)
		return errorResult(err.Error()), nil
	}

	return textResult(text), nil
}

func unmarshalArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func marshalText(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(b), nil
}
