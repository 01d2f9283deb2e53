package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pantrylabs/pantry-agent/internal/observability/middleware"
)

const (
	protocolVersion = "2025-03-26"
	serverName      = "pantry-agent"
	serverVersion   = "0.1.0"

	sessionHeader = "Mcp-Session-Id"
)

// Server exposes the toolset as an MCP endpoint at POST /mcp.
type Server struct {
	mux    *http.ServeMux
	server *http.Server
	tools  *Toolset
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New builds the agent server around the given toolset.
func New(tools *Toolset) *Server {
	s := &Server{tools: tools}

	logger := slog.Default()

	mux := http.NewServeMux()
	mux.Handle("POST /mcp", middleware.Apply(http.HandlerFunc(s.handleRPC),
		middleware.Logging(logger),
		middleware.Recovery,
	))
	s.mux = mux

	return s
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request (DoS protection against slow clients)
		WriteTimeout: 2 * time.Minute,  // Inbound: Write entire response, bounds slow retailer calls too
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(ctx, w, errorResponse(nil, codeParseError, "parse error: "+err.Error()), http.StatusOK)
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(ctx, w, errorResponse(req.ID, codeInvalidRequest, `jsonrpc version must be "2.0"`), http.StatusOK)
		return
	}

	switch req.Method {
	case "initialize":
		s.respond(w, r, resultResponse(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": serverName, "version": serverVersion},
		}), func(h http.Header) {
			h.Set(sessionHeader, ulid.Make().String())
		})

	case "notifications/initialized":
		w.WriteHeader(http.StatusAccepted)

	case "ping":
		s.respond(w, r, resultResponse(req.ID, map[string]any{}), nil)

	case "tools/list":
		s.respond(w, r, resultResponse(req.ID, map[string]any{"tools": s.tools.Descriptors()}), nil)

	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			s.respond(w, r, errorResponse(req.ID, codeInvalidParams, "tools/call params require a tool name"), nil)
			return
		}

		result, err := s.tools.Call(ctx, params.Name, params.Arguments)
		if err != nil {
			if errors.Is(err, errUnknownTool) {
				s.respond(w, r, errorResponse(req.ID, codeInvalidParams, err.Error()), nil)
				return
			}
			slog.ErrorContext(ctx, "tool dispatch failed", "tool", params.Name, "error", err)
			s.respond(w, r, errorResponse(req.ID, codeInternalError, "internal error"), nil)
			return
		}
		s.respond(w, r, resultResponse(req.ID, result), nil)

	default:
		if req.notification() {
			// Unknown notifications are acknowledged and dropped.
			w.WriteHeader(http.StatusAccepted)
			return
		}
		s.respond(w, r, errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method)), nil)
	}
}

// respond writes the JSON-RPC response either as plain JSON or, when the
// client asked for text/event-stream, as a single SSE message event.
// setHeaders, when non-nil, runs before the response body is written.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, resp rpcResponse, setHeaders func(http.Header)) {
	ctx := r.Context()

	if setHeaders != nil {
		setHeaders(w.Header())
	}

	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		writeJSON(ctx, w, resp, http.StatusOK)
		return
	}

	sw, err := NewSSEWriter(w)
	if err != nil {
		writeJSON(ctx, w, resp, http.StatusOK)
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
		return
	}
	if err := sw.WriteEvent("message", data); err != nil {
		slog.ErrorContext(ctx, "failed to write SSE response", "error", err)
	}
}
