package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/cache"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/services"
	"github.com/desertthunder/albumwall/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows which route patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// LibraryService is what the /library and /test-token endpoints need from the Web API client.
type LibraryService interface {
	services.LibraryFetcher
	Probe(ctx context.Context, accessToken string) []services.EndpointCheck
}

// AnalyticsStore persists login events. A nil store means analytics is not configured.
type AnalyticsStore interface {
	Create(event *models.LoginEvent) error
	Summary(now time.Time) (*models.Analytics, error)
}

// Options wires the server's collaborators.
type Options struct {
	Config    *shared.Config
	Tokens    services.TokenExchanger
	Library   LibraryService
	Analytics AnalyticsStore
	Metrics   *Metrics
	Logger    *log.Logger
	// OnLogin is called after a successful callback with the new session cookie value.
	OnLogin func(LoginResult)
}

// Server is the session server: the session endpoints plus library aggregation and diagnostics.
type Server struct {
	config      *shared.Config
	router      *BasicRouter
	cache       *cache.Store[*models.Library]
	cacheMaxAge time.Duration
	logger      *log.Logger
}

// pruneInterval is how often idle library cache entries are swept.
const pruneInterval = 10 * time.Minute

// New assembles the router, middleware and handlers.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config", shared.ErrMissingConfig)
	}
	if opts.Tokens == nil || opts.Library == nil {
		return nil, fmt.Errorf("%w: token and library clients are required", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}

	conf := opts.Config
	codec := NewCookieCodec(conf.Session, conf.IsProduction())
	logger := shared.WithLogger(opts.Logger, "component", "server")

	router := NewBasicRouter()
	router.Use(RequestID())
	if conf.Server.TrustProxy {
		router.Use(RealIP())
	}
	router.Use(
		RequestLogger(logger),
		opts.Metrics.Middleware(),
		Recoverer(),
		CORS(conf.Server.FrontendURI),
	)

	limit := RateLimit(conf.Server.RateLimit)

	session := NewSessionHandler(SessionHandlerOpts{
		Config:  conf,
		Tokens:  opts.Tokens,
		Codec:   codec,
		Metrics: opts.Metrics,
		Logger:  logger,
		OnLogin: opts.OnLogin,
	})
	router.Handler(WithMiddleware(session, limit))

	store := cache.NewStore[*models.Library](time.Duration(conf.Session.CacheTTLSeconds) * time.Second)
	library := NewLibraryHandler(LibraryHandlerOpts{
		Tokens:  opts.Tokens,
		Library: opts.Library,
		Codec:   codec,
		Cache:   store,
		Metrics: opts.Metrics,
		Logger:  logger,
	})
	router.Handler(WithMiddleware(library, limit))

	router.Handler(NewDiagnosticsHandler(conf, opts.Tokens))
	router.Handler(NewAnalyticsHandler(conf.Analytics, opts.Analytics, logger))
	router.Handle(http.MethodGet, "/metrics", opts.Metrics.Handler())

	return &Server{
		config:      conf,
		router:      router,
		cache:       store,
		cacheMaxAge: time.Duration(conf.Session.CacheMaxAgeSeconds) * time.Second,
		logger:      logger,
	}, nil
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("session server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go s.pruneLoop(pruneCtx, pruneInterval)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down session server")
		return srv.Shutdown(shutdownCtx)
	}
}

// pruneLoop sweeps the library cache every interval until ctx is done.
func (s *Server) pruneLoop(ctx context.Context, interval time.Duration) {
	if s.cacheMaxAge <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneCache()
		}
	}
}

// pruneCache drops library cache entries older than the configured max age.
func (s *Server) pruneCache() int {
	if s.cacheMaxAge <= 0 {
		return 0
	}
	removed := s.cache.Prune(s.cacheMaxAge)
	if removed > 0 {
		s.logger.Debug("pruned library cache", "removed", removed, "remaining", s.cache.Len())
	}
	return removed
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
