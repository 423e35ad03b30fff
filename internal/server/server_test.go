package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/albumwall/internal/services"
	"github.com/desertthunder/albumwall/internal/shared"
	testutil "github.com/desertthunder/albumwall/internal/testing"
)

const testFrontend = "http://app.test/"

// newTestServer wires a server against stub with rate limiting off.
func newTestServer(t *testing.T, stub *testutil.SpotifyStub, mutate func(o *Options)) *Server {
	t.Helper()

	conf := shared.DefaultConfig()
	conf.Credentials.Spotify.ClientID = stub.ClientID
	conf.Credentials.Spotify.ClientSecret = stub.ClientSecret
	conf.Credentials.Spotify.RedirectURI = "http://127.0.0.1:3000/callback"
	conf.Server.FrontendURI = testFrontend
	conf.Server.RateLimit = 0

	logger := shared.NewLogger(nil)
	opts := Options{
		Config: conf,
		Tokens: services.NewTokenClient(conf.Credentials.Spotify, services.TokenClientOpts{
			AuthURL:  stub.AuthURL(),
			TokenURL: stub.TokenURL(),
			Logger:   logger,
		}),
		Library: services.NewSpotifyService(services.SpotifyOpts{BaseURL: stub.APIURL(), Logger: logger}),
		Logger:  logger,
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv, err := New(opts)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func serve(srv http.Handler, method, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	r := httptestRequest(method, target)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return record(srv, r)
}

func httptestRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

func record(srv http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func sessionCookie(value string) *http.Cookie {
	return &http.Cookie{Name: "session", Value: value}
}

// responseCookie returns the named Set-Cookie from w, or nil.
func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestNew(t *testing.T) {
	t.Run("requires config", func(t *testing.T) {
		if _, err := New(Options{}); err == nil {
			t.Error("expected error without config")
		}
	})

	t.Run("requires clients", func(t *testing.T) {
		if _, err := New(Options{Config: shared.DefaultConfig()}); err == nil {
			t.Error("expected error without token and library clients")
		}
	})

	t.Run("Addr", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		srv := newTestServer(t, stub, func(o *Options) {
			o.Config.Server.Host = "127.0.0.1"
			o.Config.Server.Port = 4321
		})
		if srv.Addr() != "127.0.0.1:4321" {
			t.Errorf("expected 127.0.0.1:4321, got %s", srv.Addr())
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("CORS allows the frontend origin with credentials", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		srv := newTestServer(t, stub, nil)

		r := httptest.NewRequest(http.MethodOptions, "/refresh", nil)
		r.Header.Set("Origin", "http://app.test")
		r.Header.Set("Access-Control-Request-Method", http.MethodGet)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, r)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.test" {
			t.Errorf("expected allowed origin http://app.test, got %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("expected credentials allowed, got %q", got)
		}
	})

	t.Run("CORS ignores other origins", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		srv := newTestServer(t, stub, nil)

		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		r.Header.Set("Origin", "http://evil.test")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, r)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no allowed origin, got %q", got)
		}
	})

	t.Run("rate limits session endpoints", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		srv := newTestServer(t, stub, func(o *Options) { o.Config.Server.RateLimit = 2 })

		for i := range 2 {
			if w := serve(srv, http.MethodGet, "/refresh"); w.Code != http.StatusUnauthorized {
				t.Fatalf("request %d: expected 401, got %d", i, w.Code)
			}
		}
		if w := serve(srv, http.MethodGet, "/refresh"); w.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", w.Code)
		}
		if w := serve(srv, http.MethodGet, "/healthz"); w.Code != http.StatusOK {
			t.Errorf("expected health check to bypass the limit, got %d", w.Code)
		}
	})

	t.Run("rate limit ignores forwarded headers by default", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		srv := newTestServer(t, stub, func(o *Options) { o.Config.Server.RateLimit = 1 })

		forwarded := func(ip string) *httptest.ResponseRecorder {
			r := httptestRequest(http.MethodGet, "/refresh")
			r.Header.Set("X-Forwarded-For", ip)
			return record(srv, r)
		}
		if w := forwarded("198.51.100.1"); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if w := forwarded("198.51.100.2"); w.Code != http.StatusTooManyRequests {
			t.Errorf("expected a spoofed X-Forwarded-For to share the limit, got %d", w.Code)
		}
	})

	t.Run("trusted proxy limits by forwarded address", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		srv := newTestServer(t, stub, func(o *Options) {
			o.Config.Server.RateLimit = 1
			o.Config.Server.TrustProxy = true
		})

		forwarded := func(ip string) *httptest.ResponseRecorder {
			r := httptestRequest(http.MethodGet, "/refresh")
			r.Header.Set("X-Forwarded-For", ip)
			return record(srv, r)
		}
		for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
			if w := forwarded(ip); w.Code != http.StatusUnauthorized {
				t.Fatalf("%s: expected 401, got %d", ip, w.Code)
			}
		}
		if w := forwarded("198.51.100.1"); w.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429 for a repeated client, got %d", w.Code)
		}
	})

	t.Run("Recoverer turns panics into 500", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(Recoverer())
		router.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		if w := serve(router, http.MethodGet, "/boom"); w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
	})
}

func TestBasicRouter(t *testing.T) {
	t.Run("applies middleware in order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mw("first"), mw("second"))
		router.Handle(http.MethodGet, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))
		serve(router, http.MethodGet, "/")

		if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "handler" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("method filtering", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodPost, "/only-post", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		if w := serve(router, http.MethodGet, "/only-post"); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", w.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	stub := testutil.NewSpotifyStub(t)
	srv := newTestServer(t, stub, nil)

	serve(srv, http.MethodGet, "/healthz")
	w := serve(srv, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, name := range []string{"albumwall_http_requests_total", "go_goroutines"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}

func TestServerPruneCache(t *testing.T) {
	t.Run("drops entries older than the max age", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		stub.RefreshTokens["rt"] = true
		stub.AddAlbums(2)
		srv := newTestServer(t, stub, nil)

		if w := serve(srv, http.MethodGet, "/library", sessionCookie("rt")); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if srv.pruneCache() != 0 || srv.cache.Len() != 1 {
			t.Fatalf("expected a fresh entry to survive, got %d keys", srv.cache.Len())
		}

		srv.cacheMaxAge = time.Nanosecond
		time.Sleep(time.Millisecond)
		if removed := srv.pruneCache(); removed != 1 {
			t.Errorf("expected 1 pruned entry, got %d", removed)
		}
		if srv.cache.Len() != 0 {
			t.Errorf("expected empty cache, got %d keys", srv.cache.Len())
		}
	})

	t.Run("zero max age disables pruning", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		srv := newTestServer(t, stub, func(o *Options) { o.Config.Session.CacheMaxAgeSeconds = 0 })

		if srv.pruneCache() != 0 {
			t.Error("expected nothing pruned")
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			srv.pruneLoop(ctx, time.Millisecond)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("expected pruneLoop to return at once")
		}
		cancel()
	})

	t.Run("pruneLoop stops with its context", func(t *testing.T) {
		stub := testutil.NewSpotifyStub(t)
		srv := newTestServer(t, stub, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			srv.pruneLoop(ctx, time.Millisecond)
			close(done)
		}()
		time.Sleep(5 * time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("expected pruneLoop to stop after cancel")
		}
	})
}
