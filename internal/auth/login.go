package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLoginTimeout = 5 * time.Minute

// LoginOutcome classifies how a pending login ended.
type LoginOutcome string

const (
	// LoginSucceeded means a code arrived, was exchanged, and the credential
	// was persisted.
	LoginSucceeded LoginOutcome = "succeeded"
	// LoginFailed means a code arrived but could not be exchanged or
	// persisted. The attempt is over; there is no automatic retry.
	LoginFailed LoginOutcome = "failed"
	// LoginDenied means the authority reported an error, e.g. the user
	// refused consent.
	LoginDenied LoginOutcome = "denied"
	// LoginMalformed means the callback carried neither a code nor an error.
	LoginMalformed LoginOutcome = "malformed"
	// LoginTimedOut means no callback arrived within the bound. Not an
	// error: the coordinator simply returned to idle.
	LoginTimedOut LoginOutcome = "timed_out"
)

// LoginResult is delivered on a session's Done channel when the login
// reaches a terminal state.
type LoginResult struct {
	Outcome LoginOutcome
	Err     error
}

// LoginSession is the caller's view of a pending login. Done receives
// exactly one result.
type LoginSession struct {
	AuthorizationURL string
	Done             <-chan LoginResult
}

// LoginCoordinatorOption configures a LoginCoordinator.
type LoginCoordinatorOption func(*LoginCoordinator)

// WithLoginTimeout bounds how long a pending login waits for the callback.
func WithLoginTimeout(d time.Duration) LoginCoordinatorOption {
	return func(c *LoginCoordinator) {
		c.timeout = d
	}
}

// WithCallback overrides the local callback listener address and path.
func WithCallback(host string, port int, path string) LoginCoordinatorOption {
	return func(c *LoginCoordinator) {
		c.host = host
		c.port = port
		c.path = path
	}
}

// LoginCoordinator drives the browser-based consent flow. It owns a
// short-lived local callback listener and resolves each pending login exactly
// once: via the callback (success, denial, or a malformed request) or via the
// timeout, whichever fires first. At most one login is pending per process;
// starting another while one is outstanding returns the existing session
// without binding a second listener.
type LoginCoordinator struct {
	exchanger TokenExchanger
	manager   *UserTokenManager
	scope     string

	host    string
	port    int
	path    string
	timeout time.Duration

	mu      sync.Mutex
	pending *pendingLogin
}

type pendingLogin struct {
	authorizationURL string
	state            string
	srv              *http.Server
	timer            *time.Timer
	done             chan LoginResult
}

// NewLoginCoordinator creates a coordinator that requests the given scope
// and persists completed logins through the manager.
func NewLoginCoordinator(exchanger TokenExchanger, manager *UserTokenManager, scope string, opts ...LoginCoordinatorOption) *LoginCoordinator {
	c := &LoginCoordinator{
		exchanger: exchanger,
		manager:   manager,
		scope:     scope,
		host:      "127.0.0.1",
		port:      8765,
		path:      "/callback",
		timeout:   defaultLoginTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RedirectURI returns the fixed local redirect target registered with the
// authority.
func (c *LoginCoordinator) RedirectURI() string {
	return fmt.Sprintf("http://%s%s", c.addr(), c.path)
}

func (c *LoginCoordinator) addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// StartLogin begins a login round-trip and returns immediately with the URL
// the user must visit; the coordinator does not guarantee the URL is ever
// opened. The only synchronous failure is the callback port being
// unavailable. Completion is observable on the returned session's Done
// channel, or indirectly through a later UserTokenManager read finding fresh
// state.
func (c *LoginCoordinator) StartLogin(ctx context.Context) (*LoginSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return &LoginSession{
			AuthorizationURL: c.pending.authorizationURL,
			Done:             c.pending.done,
		}, nil
	}

	state := uuid.NewString()
	authURL := c.exchanger.AuthorizationURL(c.RedirectURI(), c.scope, state)

	ln, err := net.Listen("tcp", c.addr())
	if err != nil {
		return nil, fmt.Errorf("bind login callback listener on %s: %w", c.addr(), err)
	}

	p := &pendingLogin{
		authorizationURL: authURL,
		state:            state,
		done:             make(chan LoginResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+c.path, func(w http.ResponseWriter, r *http.Request) {
		c.handleCallback(p, w, r)
	})
	p.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := p.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("login callback server failed", "error", err)
		}
	}()

	p.timer = time.AfterFunc(c.timeout, func() {
		if c.finish(p, LoginResult{Outcome: LoginTimedOut}) {
			slog.Info("login timed out", "timeout", c.timeout)
		}
	})

	c.pending = p
	slog.InfoContext(ctx, "login started", "redirect_uri", c.RedirectURI(), "scope", c.scope)

	return &LoginSession{AuthorizationURL: authURL, Done: p.done}, nil
}

// handleCallback resolves the pending login from the browser redirect.
// Exactly one terminal transition fires per pending login; late or repeated
// callbacks find the login already detached and are turned away.
func (c *LoginCoordinator) handleCallback(p *pendingLogin, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !c.isPending(p) {
		http.Error(w, "login session expired", http.StatusGone)
		return
	}

	q := r.URL.Query()

	if got := q.Get("state"); got != "" && got != p.state {
		slog.WarnContext(ctx, "login callback state mismatch", "got", got)
	}

	// An error parameter wins even when a code is also present
	if errCode := q.Get("error"); errCode != "" {
		desc := q.Get("error_description")
		slog.WarnContext(ctx, "login denied by authority", "error", errCode, "description", desc)
		writeCallbackPage(w, http.StatusOK, "Login failed",
			fmt.Sprintf("The authorization server reported: %s.", errCode))
		c.finish(p, LoginResult{Outcome: LoginDenied, Err: fmt.Errorf("authorization denied: %s", errCode)})
		return
	}

	code := q.Get("code")
	if code == "" {
		slog.WarnContext(ctx, "malformed login callback", "query", r.URL.RawQuery)
		writeCallbackPage(w, http.StatusBadRequest, "Login failed",
			"The callback carried neither a code nor an error parameter.")
		c.finish(p, LoginResult{Outcome: LoginMalformed, Err: errors.New("callback missing code and error parameters")})
		return
	}

	// The exchange outcome only changes what the browser shows; the attempt
	// is terminal either way.
	if err := c.manager.CompleteLogin(ctx, code, c.RedirectURI(), c.scope); err != nil {
		slog.ErrorContext(ctx, "authorization code exchange failed", "error", err)
		writeCallbackPage(w, http.StatusOK, "Login failed",
			"The authorization code could not be exchanged. Start a new login and try again.")
		c.finish(p, LoginResult{Outcome: LoginFailed, Err: err})
		return
	}

	writeCallbackPage(w, http.StatusOK, "Login successful",
		"You are signed in.")
	c.finish(p, LoginResult{Outcome: LoginSucceeded})
}

// finish performs the single terminal transition for p: detach it, stop the
// timer, deliver the result, and shut the callback server down. It reports
// false when p already finished, in which case nothing is done.
func (c *LoginCoordinator) finish(p *pendingLogin, result LoginResult) bool {
	c.mu.Lock()
	if c.pending != p {
		c.mu.Unlock()
		return false
	}
	c.pending = nil
	c.mu.Unlock()

	p.timer.Stop()
	p.done <- result

	// The handler that triggered the transition may still be writing its
	// response, so shut down off this goroutine and give in-flight responses
	// a moment to drain.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.srv.Shutdown(ctx); err != nil {
			_ = p.srv.Close()
		}
	}()

	return true
}

func (c *LoginCoordinator) isPending(p *pendingLogin) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending == p
}

// writeCallbackPage renders the minimal human-readable page shown in the
// user's browser after the redirect.
func writeCallbackPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, fmt.Sprintf(
		"<!DOCTYPE html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p><p>You can close this window.</p></body></html>",
		title, title, detail))
}
