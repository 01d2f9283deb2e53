// Package auth implements the OAuth2 token lifecycle for the retailer API.
//
// Two independent credential flows are managed:
//   - App tokens (client-credentials grant): process-lifetime, in-memory,
//     cached by AppTokenCache and refreshed five minutes before expiry.
//   - User tokens (authorization-code grant): persisted to a single JSON
//     file by FileStore, read-refresh-written by UserTokenManager, and
//     bootstrapped through the browser round-trip owned by LoginCoordinator.
//
// Refresh tokens are single-use at the authority: every refresh rotates the
// stored pair wholesale, and a rejected refresh clears the credential
// entirely (fail closed). Callers that find no usable user token receive
// ErrAuthRequired from the oauth2.TokenSource adapters so upstream layers
// can start the interactive flow instead of surfacing a raw error.
package auth
