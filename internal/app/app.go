package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/pantrylabs/pantry-agent/internal/agent"
	"github.com/pantrylabs/pantry-agent/internal/auth"
	"github.com/pantrylabs/pantry-agent/internal/grocer"
)

// AuthStack bundles the token lifecycle components shared by the serve and
// login commands.
type AuthStack struct {
	Exchanger *grocer.OAuthClient
	Store     *auth.FileStore
	Users     *auth.UserTokenManager
	Apps      *auth.AppTokenCache
	Login     *auth.LoginCoordinator
}

// NewAuthStack resolves the client secret and builds the token lifecycle
// components. The secret is read once here; token endpoint I/O is deferred
// to the first token request.
func NewAuthStack(ctx context.Context, cfg *Config) (*AuthStack, error) {
	source, err := cfg.API.NewSecretSource()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret source: %w", err)
	}
	secret, err := source.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret: %w", err)
	}

	exchanger := grocer.NewOAuthClient(cfg.API.BaseURL, cfg.API.ClientID, secret)

	store, err := auth.NewFileStore(cfg.Auth.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	users := auth.NewUserTokenManager(store, exchanger)
	login := auth.NewLoginCoordinator(exchanger, users, cfg.Auth.UserScope,
		auth.WithLoginTimeout(cfg.Auth.LoginTimeout),
		auth.WithCallback(cfg.Auth.CallbackHost, int(cfg.Auth.CallbackPort), cfg.Auth.CallbackPath),
	)

	return &AuthStack{
		Exchanger: exchanger,
		Store:     store,
		Users:     users,
		Apps:      auth.NewAppTokenCache(exchanger),
		Login:     login,
	}, nil
}

// App orchestrates the lifecycle of the agent server and related services.
type App struct {
	cfg   *Config
	agent *agent.Server
}

// New creates a new App instance.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	stack, err := NewAuthStack(ctx, cfg)
	if err != nil {
		return nil, err
	}

	api := grocer.New(cfg.API.BaseURL,
		auth.AppTokenSource(stack.Apps, cfg.Auth.AppScope),
		auth.UserTokenSource(stack.Users),
	)

	tools := agent.NewToolset(api, stack.Users, stack.Login)

	return &App{
		cfg:   cfg,
		agent: agent.New(tools),
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting agent server", "address", address)
	agentErrCh, err := a.agent.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("agent startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.agent.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-agentErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "agent runtime error", "error", err)
				return fmt.Errorf("agent: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
