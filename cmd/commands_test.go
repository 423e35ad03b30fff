package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/server"
	"github.com/desertthunder/albumwall/internal/shared"
	tu "github.com/desertthunder/albumwall/internal/testing"
)

// sessionStub imitates the session server. /refresh rotates sess-1 to sess-2.
type sessionStub struct {
	*httptest.Server
	lib     atomic.Pointer[models.Library]
	logouts atomic.Int32
}

func newSessionStub(t *testing.T) *sessionStub {
	t.Helper()
	s := &sessionStub{}

	mux := http.NewServeMux()
	authed := func(w http.ResponseWriter, r *http.Request) bool {
		c, err := r.Cookie("session")
		if err != nil || (c.Value != "sess-1" && c.Value != "sess-2") {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "No refresh token"})
			return false
		}
		return true
	}
	mux.HandleFunc("GET /refresh", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "sess-2", Path: "/"})
		json.NewEncoder(w).Encode(map[string]any{"access_token": "access-1", "expires_in": 3600})
	})
	mux.HandleFunc("GET /library", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		json.NewEncoder(w).Encode(s.lib.Load())
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		s.logouts.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "", Path: "/", MaxAge: -1})
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("GET /cover/{id}", func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 16, 16))
		for x := range 16 {
			for y := range 16 {
				img.Set(x, y, color.RGBA{R: 200, G: 40, B: 90, A: 255})
			}
		}
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, img)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// stubLibrary returns n albums whose covers are served by the stub.
func (s *sessionStub) stubLibrary(n int) *models.Library {
	albums := tu.Albums(n)
	for i := range albums {
		albums[i].Images[0].URL = s.URL + "/cover/" + albums[i].ID
	}
	return &models.Library{Albums: albums, User: &models.Profile{ID: "u1", DisplayName: "Listener"}}
}

func writeSessionFile(t *testing.T, value string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session")
	if err := saveSession(path, value); err != nil {
		t.Fatal(err)
	}
	return path
}

func quietRunner(output *bytes.Buffer, client *http.Client) *Runner {
	return NewRunner(RunnerOpts{
		Output:     output,
		Logger:     shared.NewLogger(&bytes.Buffer{}),
		HTTPClient: client,
	})
}

func TestCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("status", func(t *testing.T) {
		t.Run("signed in saves the rotated session", func(t *testing.T) {
			stub := newSessionStub(t)
			path := writeSessionFile(t, "sess-1")
			output := &bytes.Buffer{}
			runner := quietRunner(output, nil)

			err := statusCommand(runner).Run(ctx, []string{"status", "--session", path, "--server", stub.URL, "--json"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			var report statusReport
			if err := json.Unmarshal(output.Bytes(), &report); err != nil {
				t.Fatalf("expected JSON output, got %q", output.String())
			}
			if !report.SignedIn || report.ExpiresAt.IsZero() {
				t.Errorf("expected signed in with expiry, got %+v", report)
			}

			if got, _ := loadSession(path); got != "sess-2" {
				t.Errorf("expected rotated session to be saved, got %q", got)
			}
		})

		t.Run("rejected session", func(t *testing.T) {
			stub := newSessionStub(t)
			path := writeSessionFile(t, "stale")
			output := &bytes.Buffer{}
			runner := quietRunner(output, nil)

			err := statusCommand(runner).Run(ctx, []string{"status", "--session", path, "--server", stub.URL})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), "✗ Not signed in") {
				t.Errorf("expected not signed in, got %q", output.String())
			}
		})

		t.Run("unreachable server", func(t *testing.T) {
			path := writeSessionFile(t, "sess-1")
			output := &bytes.Buffer{}
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
			runner := quietRunner(output, client)

			err := statusCommand(runner).Run(ctx, []string{"status", "--session", path, "--server", "http://session.test", "--json"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			var report statusReport
			if err := json.Unmarshal(output.Bytes(), &report); err != nil {
				t.Fatal(err)
			}
			if report.SignedIn || !strings.Contains(report.Error, shared.ErrServiceUnavailable.Error()) {
				t.Errorf("expected service unavailable, got %+v", report)
			}
		})

		t.Run("unreadable response", func(t *testing.T) {
			path := writeSessionFile(t, "sess-1")
			output := &bytes.Buffer{}
			resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: &tu.FCloser{}}
			client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}
			runner := quietRunner(output, client)

			err := statusCommand(runner).Run(ctx, []string{"status", "--session", path, "--server", "http://session.test", "--json"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), "failed to decode") {
				t.Errorf("expected decode error, got %q", output.String())
			}
		})

		t.Run("no saved session", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := quietRunner(output, nil)
			path := filepath.Join(t.TempDir(), "session")

			err := statusCommand(runner).Run(ctx, []string{"status", "--session", path, "--server", "http://session.test"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), "albumwall login") {
				t.Errorf("expected a login hint, got %q", output.String())
			}
		})
	})

	t.Run("logout", func(t *testing.T) {
		t.Run("ends the session and removes the file", func(t *testing.T) {
			stub := newSessionStub(t)
			path := writeSessionFile(t, "sess-1")
			output := &bytes.Buffer{}
			runner := quietRunner(output, nil)

			err := logoutCommand(runner).Run(ctx, []string{"logout", "--session", path, "--server", stub.URL})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if stub.logouts.Load() != 1 {
				t.Errorf("expected one server logout, got %d", stub.logouts.Load())
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Error("expected session file to be removed")
			}
		})

		t.Run("removes the file when the server is unreachable", func(t *testing.T) {
			path := writeSessionFile(t, "sess-1")
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
			runner := quietRunner(&bytes.Buffer{}, client)

			err := logoutCommand(runner).Run(ctx, []string{"logout", "--session", path, "--server", "http://session.test"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Error("expected session file to be removed")
			}
		})
	})

	t.Run("library", func(t *testing.T) {
		t.Run("prints text via the server", func(t *testing.T) {
			stub := newSessionStub(t)
			stub.lib.Store(stub.stubLibrary(3))
			path := writeSessionFile(t, "sess-1")
			output := &bytes.Buffer{}
			runner := quietRunner(output, nil)

			err := libraryCommand(runner).Run(ctx, []string{"library", "--session", path, "--server", stub.URL, "--via-server"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			got := output.String()
			if !strings.HasPrefix(got, "Albums: 3") {
				t.Errorf("expected album count header, got %q", got)
			}
			if !strings.Contains(got, "3. Artist 2 - Album 2") {
				t.Errorf("expected third album line, got %q", got)
			}
		})

		t.Run("writes csv to a file", func(t *testing.T) {
			stub := newSessionStub(t)
			stub.lib.Store(stub.stubLibrary(2))
			path := writeSessionFile(t, "sess-1")
			output := &bytes.Buffer{}
			runner := quietRunner(output, nil)
			out := filepath.Join(t.TempDir(), "albums.csv")

			err := libraryCommand(runner).Run(ctx, []string{
				"library", "--session", path, "--server", stub.URL, "--via-server", "--format", "csv", "--output", out,
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			data := tu.MustReadFile(t, out)
			if !strings.HasPrefix(string(data), "ID,Name,Artists") {
				t.Errorf("expected csv header, got %q", data)
			}
			if !strings.Contains(output.String(), "Wrote 2 albums") {
				t.Errorf("expected confirmation, got %q", output.String())
			}
		})

		t.Run("rejects unknown format before fetching", func(t *testing.T) {
			runner := quietRunner(&bytes.Buffer{}, nil)

			err := libraryCommand(runner).Run(ctx, []string{"library", "--format", "xml"})
			if !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})

		t.Run("rejected session", func(t *testing.T) {
			stub := newSessionStub(t)
			path := writeSessionFile(t, "stale")
			runner := quietRunner(&bytes.Buffer{}, nil)

			err := libraryCommand(runner).Run(ctx, []string{"library", "--session", path, "--server", stub.URL, "--via-server"})
			if !errors.Is(err, shared.ErrUnauthenticated) {
				t.Errorf("expected ErrUnauthenticated, got %v", err)
			}
		})
	})

	t.Run("collage", func(t *testing.T) {
		t.Run("renders a grid", func(t *testing.T) {
			stub := newSessionStub(t)
			stub.lib.Store(stub.stubLibrary(4))
			path := writeSessionFile(t, "sess-1")
			output := &bytes.Buffer{}
			runner := quietRunner(output, nil)
			dir := t.TempDir()

			err := collageCommand(runner).Run(ctx, []string{
				"collage", "--session", path, "--server", stub.URL, "--via-server",
				"--layout", "grid", "--scale", "1", "--out", dir, "--watermark",
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			tu.AssertFileExists(t, filepath.Join(dir, "albumwall-grid-4@1x.png"))
			if !strings.Contains(output.String(), "4 albums") {
				t.Errorf("expected summary, got %q", output.String())
			}
		})

		t.Run("renders a cd collage at 2x", func(t *testing.T) {
			stub := newSessionStub(t)
			stub.lib.Store(stub.stubLibrary(3))
			path := writeSessionFile(t, "sess-1")
			runner := quietRunner(&bytes.Buffer{}, nil)
			dir := t.TempDir()

			err := collageCommand(runner).Run(ctx, []string{
				"collage", "--session", path, "--server", stub.URL, "--via-server",
				"--layout", "cd", "--scale", "2", "--out", dir,
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			tu.AssertFileExists(t, filepath.Join(dir, "albumwall-cd-3@2x.png"))
		})

		t.Run("empty library", func(t *testing.T) {
			stub := newSessionStub(t)
			stub.lib.Store(&models.Library{Albums: []models.Album{}})
			path := writeSessionFile(t, "sess-1")
			runner := quietRunner(&bytes.Buffer{}, nil)

			err := collageCommand(runner).Run(ctx, []string{
				"collage", "--session", path, "--server", stub.URL, "--via-server", "--out", t.TempDir(),
			})
			if !errors.Is(err, shared.ErrRender) {
				t.Errorf("expected ErrRender, got %v", err)
			}
		})

		t.Run("validates flags", func(t *testing.T) {
			runner := quietRunner(&bytes.Buffer{}, nil)

			for _, args := range [][]string{
				{"collage", "--layout", "spiral"},
				{"collage", "--scale", "5"},
				{"collage", "--size=-1"},
				{"collage", "--background", "blue"},
			} {
				err := collageCommand(runner).Run(ctx, args)
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("%v: expected ErrInvalidArgument, got %v", args, err)
				}
			}
		})
	})

	t.Run("export", func(t *testing.T) {
		stub := newSessionStub(t)
		stub.lib.Store(stub.stubLibrary(4))
		path := writeSessionFile(t, "sess-1")
		output := &bytes.Buffer{}
		runner := quietRunner(output, nil)
		dir := filepath.Join(t.TempDir(), "export")

		err := exportCommand(runner).Run(ctx, []string{
			"export", "--session", path, "--server", stub.URL, "--via-server",
			"--format", "json", "--format", "md", "--grid", "1", "--output-dir", dir, "--rate-limit", "100",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertDirExists(t, dir)
		tu.AssertFileExists(t, filepath.Join(dir, "albums.json"))
		tu.AssertFileExists(t, filepath.Join(dir, "albums.md"))
		tu.AssertFileExists(t, filepath.Join(dir, "albumwall-grid-4@1x.png"))
		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))

		if !strings.Contains(output.String(), "3 ok, 0 failed") {
			t.Errorf("expected job summary, got %q", output.String())
		}
	})

	t.Run("embedded server", func(t *testing.T) {
		runner := quietRunner(&bytes.Buffer{}, nil)
		waiter := server.NewLoginWaiter()

		baseURL, stop, err := runner.startLocalServer(ctx, "127.0.0.1:0", waiter.Send)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer stop()

		if !strings.HasPrefix(baseURL, "http://127.0.0.1:") {
			t.Errorf("expected a loopback url, got %s", baseURL)
		}

		resp, err := http.Get(baseURL + "/callback?error=access_denied")
		if err != nil {
			t.Fatal(err)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		body := string(raw)

		if resp.Request.URL.Path != "/done" {
			t.Errorf("expected to land on /done, got %s", resp.Request.URL)
		}
		if !strings.Contains(body, "Sign-in failed") {
			t.Errorf("expected failure page, got %q", body)
		}

		result := <-waiter.Result()
		if result.Error() == nil || result.Session != "" {
			t.Errorf("expected a failed login result, got %+v", result)
		}
	})

	t.Run("serve rejects invalid config", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: &shared.Config{}, Logger: shared.NewLogger(&bytes.Buffer{})})

		err := serveCommand(runner).Run(ctx, []string{"serve"})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("login requires credentials", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Credentials.Spotify.ClientSecret = ""
		runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(&bytes.Buffer{})})

		err := loginCommand(runner).Run(ctx, []string{"login"})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("setup database creates config from template", func(t *testing.T) {
		dir := t.TempDir()
		wd := tu.MustGetwd(t)
		tu.MustChdir(t, dir)
		defer tu.MustChdir(t, wd)

		runner := quietRunner(&bytes.Buffer{}, nil)
		err := setupCommand(runner).Run(ctx, []string{"setup", "database"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "config.toml"))
		tu.AssertFileExists(t, filepath.Join(dir, "albumwall.db"))
	})

	t.Run("setup database", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.toml")
		config := shared.DefaultConfig()
		config.Database.Path = filepath.Join(dir, "albumwall.db")
		if err := shared.WriteConfigFile(configPath, config); err != nil {
			t.Fatal(err)
		}
		output := &bytes.Buffer{}
		runner := quietRunner(output, nil)

		err := setupCommand(runner).Run(ctx, []string{"setup", "database", "--config", configPath})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, config.Database.Path)
		if !strings.Contains(output.String(), "Database ready") {
			t.Errorf("expected confirmation, got %q", output.String())
		}
	})
}
