package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/pantrylabs/pantry-agent/internal/app"
	"github.com/pantrylabs/pantry-agent/internal/auth"
	"github.com/pantrylabs/pantry-agent/internal/observability"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "connect a grocer account via browser sign-in",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "print the login URL without opening a browser",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "start a new login even when already signed in",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer flushLogs()

	stack, err := app.NewAuthStack(ctx, cfg)
	if err != nil {
		return err
	}

	if !cmd.Bool("force") {
		ok, err := stack.Users.Authenticated(ctx)
		if err != nil {
			return fmt.Errorf("failed to check stored credentials: %w", err)
		}
		if ok {
			fmt.Println("Already signed in. Use --force to sign in again.")
			return nil
		}
	}

	session, err := stack.Login.StartLogin(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Open this link to sign in:\n\n  %s\n\n", session.AuthorizationURL)

	if !cmd.Bool("no-browser") && term.IsTerminal(int(os.Stdin.Fd())) {
		if err := openBrowser(ctx, session.AuthorizationURL); err != nil {
			slog.WarnContext(ctx, "failed to open browser", "error", err)
		}
	}

	fmt.Println("Waiting for the browser sign-in to finish...")

	select {
	case result := <-session.Done:
		return reportLoginResult(result, cfg)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func reportLoginResult(result auth.LoginResult, cfg *app.Config) error {
	switch result.Outcome {
	case auth.LoginSucceeded:
		fmt.Printf("Signed in. Credentials saved to %s\n", cfg.Auth.CredentialsFile)
		return nil
	case auth.LoginTimedOut:
		return fmt.Errorf("login timed out after %s", cfg.Auth.LoginTimeout)
	case auth.LoginDenied:
		return fmt.Errorf("sign-in was declined in the browser")
	case auth.LoginMalformed:
		return fmt.Errorf("the retailer returned an invalid login callback")
	default:
		if result.Err != nil {
			return fmt.Errorf("login failed: %w", result.Err)
		}
		return fmt.Errorf("login failed")
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "delete the stored grocer credential",
		Action: logoutAction,
	}
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer flushLogs()

	store, err := auth.NewFileStore(cfg.Auth.CredentialsFile)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	fmt.Println("Signed out.")
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show the stored grocer credential",
		Action: statusAction,
	}
}

// statusAction inspects the stored credential without refreshing it.
func statusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer flushLogs()

	store, err := auth.NewFileStore(cfg.Auth.CredentialsFile)
	if err != nil {
		return err
	}
	cred, err := store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	if cred == nil {
		fmt.Println("Not signed in.")
		return nil
	}

	fmt.Println("Signed in.")
	fmt.Printf("  scope:   %s\n", cred.Scope)
	if remaining := time.Until(cred.Expiry()); remaining > 0 {
		fmt.Printf("  expires: %s (in %s)\n", cred.Expiry().Format(time.RFC3339), remaining.Round(time.Second))
	} else {
		fmt.Printf("  expires: %s (expired %s ago)\n", cred.Expiry().Format(time.RFC3339), (-remaining).Round(time.Second))
	}
	if cred.RefreshToken != "" {
		fmt.Println("  refresh: available")
	} else {
		fmt.Println("  refresh: none, sign in again after expiry")
	}
	return nil
}

// openBrowser launches the platform browser for the given URL.
func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	return cmd.Start()
}
