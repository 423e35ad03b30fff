package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/desertthunder/albumwall/internal/server"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/urfave/cli/v3"
)

const loginTimeout = 2 * time.Minute

// Login runs the authorization-code flow against an embedded session server.
//
// The server listens on the configured host and port, which must match the registered redirect URI.
// The session cookie set by the callback is handed to the CLI and saved to the session file.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	spotify := r.config.Credentials.Spotify
	if spotify.ClientID == "" || spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in config.toml", shared.ErrInvalidArgument)
	}

	waiter := server.NewLoginWaiter()
	addr := net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
	baseURL, stop, err := r.startLocalServer(ctx, addr, waiter.Send)
	if err != nil {
		return err
	}
	defer stop()

	loginURL := baseURL + "/login"
	r.logger.Info("started login server", "addr", baseURL, "redirect_uri", spotify.RedirectURI)

	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", loginURL)
	} else {
		r.writePlain("→ Opening browser for Spotify sign-in...\n")
		if err := shared.OpenBrowser(loginURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", loginURL)
		}
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(loginTimeout)
	defer timeout.Stop()

	var result server.LoginResult
	select {
	case result = <-waiter.Result():
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", shared.ErrAborted, ctx.Err())
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Session == "" {
		return fmt.Errorf("%w: no session received", shared.ErrUnauthenticated)
	}

	path := cmd.String("session")
	if err := saveSession(path, result.Session); err != nil {
		return err
	}

	r.writePlainln("✓ Signed in")
	r.writePlain("✓ Session saved to %s\n\n", path)
	r.writePlain("You can now use: albumwall library\n")
	return nil
}

// Logout ends the session on the server and removes the session file.
//
// The file is removed even when the server cannot be reached.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("session")

	client, done, err := r.sessionClient(ctx, cmd)
	if err != nil {
		r.logger.Debug("no usable session to end", "error", err)
	} else {
		if err := client.Logout(ctx); err != nil {
			r.logger.Warn("server logout failed", "error", err)
		}
		done()
	}

	if err := removeSession(path); err != nil {
		return err
	}
	return r.writePlain("✓ Signed out\n")
}

type statusReport struct {
	SignedIn  bool      `json:"signed_in"`
	Server    string    `json:"server"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Status refreshes the saved session once and reports the outcome.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	report := statusReport{Server: cmd.String("server")}
	if report.Server == "" {
		report.Server = r.config.Sync.ServerURL
	}
	if cmd.Bool("local") {
		report.Server = "embedded"
	}

	client, done, err := r.sessionClient(ctx, cmd)
	if err == nil {
		defer done()
		token, rerr := client.Refresh(ctx)
		if rerr == nil {
			report.SignedIn = true
			report.ExpiresAt = token.ExpiresAt
		}
		err = rerr
	}
	if err != nil {
		report.Error = err.Error()
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader("Session")
	r.writePlain("Server: %s\n", report.Server)
	if report.SignedIn {
		r.writePlain("Status: ✓ Signed in\n")
		r.writePlain("Access token valid until: %s\n", report.ExpiresAt.Local().Format(time.Kitchen))
		return nil
	}
	r.writePlain("Status: ✗ Not signed in\n")
	r.writePlain("Reason: %s\n", report.Error)
	return nil
}
