package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/server"
	"github.com/desertthunder/albumwall/internal/services"
	"github.com/desertthunder/albumwall/internal/shared"
	"github.com/desertthunder/albumwall/internal/tasks"
	"github.com/urfave/cli/v3"
)

// defaultSessionPath is where login stores the session cookie value.
func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".albumwall", "session")
	}
	return filepath.Join(home, ".albumwall", "session")
}

// sessionFlags are shared by every command that talks to the session server as a client.
func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "session",
			Usage: "Path to the saved session",
			Value: defaultSessionPath(),
		},
		&cli.StringFlag{
			Name:  "server",
			Usage: "Session server URL (default: sync.server_url from config)",
		},
		&cli.BoolFlag{
			Name:  "local",
			Usage: "Run an embedded session server instead of connecting to one",
		},
	}
}

func loadSession(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: no saved session, run 'albumwall login' first", shared.ErrUnauthenticated)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session file: %w", err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("%w: session file %s is empty", shared.ErrUnauthenticated, path)
	}
	return value, nil
}

func saveSession(path, value string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(value+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func removeSession(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// startLocalServer serves a session server on addr until stop is called.
//
// The frontend URI is pointed at the server's own /done page so a browser login ends there.
func (r *Runner) startLocalServer(ctx context.Context, addr string, onLogin func(server.LoginResult)) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	baseURL := "http://" + net.JoinHostPort(host, port)

	conf := *r.config
	conf.Server.FrontendURI = baseURL + "/done"

	opts := r.serverOptions(&conf)
	opts.OnLogin = onLogin
	srv, err := server.New(opts)
	if err != nil {
		ln.Close()
		return "", nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, ln)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if err := <-errCh; err != nil {
				r.logger.Warn("error shutting down server", "error", err)
			}
		})
	}
	return baseURL, stop, nil
}

// sessionClient returns a client holding the saved session. Call the returned func when done:
// it saves a rotated session and stops the embedded server if one was started.
func (r *Runner) sessionClient(ctx context.Context, cmd *cli.Command) (*services.SessionClient, func(), error) {
	path := cmd.String("session")
	session, err := loadSession(path)
	if err != nil {
		return nil, nil, err
	}

	serverURL := cmd.String("server")
	if serverURL == "" {
		serverURL = r.config.Sync.ServerURL
	}

	stopServer := func() {}
	if cmd.Bool("local") {
		baseURL, stop, err := r.startLocalServer(ctx, "127.0.0.1:0", nil)
		if err != nil {
			return nil, nil, err
		}
		serverURL, stopServer = baseURL, stop
	}

	client, err := services.NewSessionClient(serverURL, services.SessionClientOpts{
		Session:    session,
		CookieName: r.config.Session.CookieName,
		HTTPClient: r.httpClient,
		Logger:     r.logger,
	})
	if err != nil {
		stopServer()
		return nil, nil, err
	}

	done := func() {
		if current := client.Session(); current != "" && current != session {
			if err := saveSession(path, current); err != nil {
				r.logger.Warn("failed to save rotated session", "error", err)
			} else {
				r.logger.Debug("saved rotated session", "path", path)
			}
		}
		stopServer()
	}
	return client, done, nil
}

// loadLibrary fetches the library for the saved session.
//
// By default the client refreshes through the session server and pages the Web API itself.
// With --via-server the server aggregates the library instead.
func (r *Runner) loadLibrary(ctx context.Context, cmd *cli.Command) (*models.Library, error) {
	client, done, err := r.sessionClient(ctx, cmd)
	if err != nil {
		return nil, err
	}
	defer done()

	if cmd.Bool("via-server") {
		r.logger.Info("fetching library from session server")
		return client.Library(ctx)
	}

	svc := r.libraryService(r.config)
	r.logger.Info("fetching library", "provider", svc.Name())

	prog := make(chan tasks.ProgressUpdate, 8)
	logged := r.logProgress(prog)
	lib, err := tasks.LoadLibrary(ctx, prog, client, svc, r.logger)
	close(prog)
	<-logged
	return lib, err
}

// logProgress logs updates until prog is closed, then closes the returned channel.
func (r *Runner) logProgress(prog <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range prog {
			r.logger.Info(u.Message, "phase", u.Phase.String(), "step", u.Step, "total", u.Total)
		}
	}()
	return done
}
