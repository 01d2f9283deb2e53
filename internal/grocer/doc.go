// Package grocer is the client for the retailer's public REST API.
//
// Catalog resources (locations, products) authenticate with an app-level
// client-credentials token; cart and identity resources require a user-level
// token obtained through the interactive login flow. Bearer tokens are
// injected by oauth2.Transport from the token sources supplied at
// construction, so resource callers never handle tokens directly.
//
// Every resource call passes a client-side rate limiter (the retailer
// enforces per-app quotas) and a circuit breaker that opens after repeated
// upstream failures. OAuthClient speaks the retailer's token endpoint and
// implements auth.TokenExchanger.
package grocer
