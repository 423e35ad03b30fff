package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/cache"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/services"
	"github.com/desertthunder/albumwall/internal/shared"
	"golang.org/x/sync/errgroup"
)

// LibraryHandlerOpts configures a [LibraryHandler].
type LibraryHandlerOpts struct {
	Tokens  services.TokenExchanger
	Library LibraryService
	Codec   *CookieCodec
	Cache   *cache.Store[*models.Library]
	Metrics *Metrics
	Logger  *log.Logger
	Now     func() time.Time
}

// LibraryHandler aggregates the album library server-side for clients that cannot page through
// the Web API themselves, and exposes token diagnostics.
type LibraryHandler struct {
	mux     *http.ServeMux
	tokens  services.TokenExchanger
	library LibraryService
	codec   *CookieCodec
	cache   *cache.Store[*models.Library]
	metrics *Metrics
	logger  *log.Logger
	now     func() time.Time
}

// NewLibraryHandler builds the handler and its routes.
func NewLibraryHandler(opts LibraryHandlerOpts) *LibraryHandler {
	h := &LibraryHandler{
		mux:     http.NewServeMux(),
		tokens:  opts.Tokens,
		library: opts.Library,
		codec:   opts.Codec,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if h.cache == nil {
		h.cache = cache.NewStore[*models.Library](0)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	if h.logger == nil {
		h.logger = shared.NewLogger(nil)
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.mux.HandleFunc("GET /library", h.Library)
	h.mux.HandleFunc("GET /test-token", h.TestToken)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *LibraryHandler) Routes() []string {
	return []string{"GET /library", "GET /test-token"}
}

func (h *LibraryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// sessionKey identifies a session in the cache without keeping the token itself.
func sessionKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}

// sessionTokens mints access tokens from one session, tracking refresh-token rotation.
type sessionTokens struct {
	mu      sync.Mutex
	tokens  services.TokenExchanger
	metrics *Metrics
	refresh string
	rotated bool
	current *models.TokenSet
	// failed is the last refresh-grant error, so callers can tell it apart from Web API errors.
	failed error
}

func (s *sessionTokens) mint(ctx context.Context) (*models.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.tokens.ExchangeRefreshToken(ctx, s.refresh)
	s.metrics.TokenExchange("refresh_token", err)
	if err != nil {
		s.failed = err
		return nil, err
	}
	if set.RefreshToken != "" {
		s.refresh = set.RefreshToken
		s.rotated = true
	}
	s.current = set
	return set, nil
}

func (s *sessionTokens) AccessToken(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current != nil && !force {
		return current.AccessToken, nil
	}
	set, err := s.mint(ctx)
	if err != nil {
		return "", err
	}
	return set.AccessToken, nil
}

// Library returns {albums, user} for the session, served from cache while fresh.
//
// A cache slot is only created once the refresh token has been accepted. When the provider fails
// and an earlier result exists, the earlier result is returned with stale set and a warning.
func (h *LibraryHandler) Library(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.codec.Read(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "No refresh token"})
		return
	}

	key := sessionKey(refreshToken)
	if slot, ok := h.cache.Peek(key); ok {
		if lib, ok, fresh := slot.Get(); ok && fresh {
			writeJSON(w, http.StatusOK, lib)
			return
		}
	}

	st := &sessionTokens{tokens: h.tokens, metrics: h.metrics, refresh: refreshToken}
	set, err := st.mint(r.Context())
	if err != nil {
		writeRefreshError(w, r, h.codec, h.logger, err)
		return
	}

	var (
		albums  []models.Album
		profile *models.Profile
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		albums, err = h.library.FetchAllAlbums(ctx, st)
		return err
	})
	g.Go(func() error {
		profile = h.library.FetchUserProfile(ctx, set.AccessToken)
		return nil
	})
	err = g.Wait()
	h.metrics.LibraryFetch(len(albums), err)

	if err != nil && st.failed != nil && errors.Is(err, st.failed) {
		writeRefreshError(w, r, h.codec, h.logger, err)
		return
	}

	if st.rotated {
		if _, werr := h.codec.Write(w, r, st.refresh); werr != nil {
			h.logger.Error("failed to rotate session cookie", "error", werr)
		}
		rotated := sessionKey(st.refresh)
		h.cache.Rename(key, rotated)
		key = rotated
	}

	if err != nil {
		h.writeLibraryError(w, r, key, err)
		return
	}

	lib := &models.Library{Albums: albums, User: profile, FetchedAt: h.now()}
	if lib.Albums == nil {
		lib.Albums = []models.Album{}
	}
	h.cache.Slot(key).Set(lib)
	h.logger.Info("library fetched", "albums", len(albums))
	writeJSON(w, http.StatusOK, lib)
}

func (h *LibraryHandler) writeLibraryError(w http.ResponseWriter, r *http.Request, key string, err error) {
	if r.Context().Err() != nil {
		h.logger.Debug("library fetch cancelled by client")
		return
	}

	if slot, ok := h.cache.Peek(key); ok {
		if prev, ok, _ := slot.Get(); ok {
			h.logger.Warn("library fetch failed, serving stale result", "error", err)
			stale := *prev
			stale.Stale = true
			stale.Warning = "Showing albums from " + prev.FetchedAt.Format(time.RFC1123) + ": " + err.Error()
			writeJSON(w, http.StatusOK, &stale)
			return
		}
	}

	switch {
	case errors.Is(err, shared.ErrInsufficientScope):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "Insufficient permissions", Details: "Re-authorize with the user-library-read scope"})
	case errors.Is(err, shared.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Access token rejected"})
	default:
		h.logger.Error("library fetch failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "Failed to fetch library"})
	}
}

type testTokenBody struct {
	TokenValid      bool                     `json:"token_valid"`
	ExpiresIn       int                      `json:"expires_in,omitempty"`
	Scopes          []string                 `json:"scopes"`
	HasLibraryScope bool                     `json:"has_library_scope"`
	Checks          []services.EndpointCheck `json:"checks"`
}

// TestToken refreshes the session and probes the endpoints the library needs, reporting scope problems.
func (h *LibraryHandler) TestToken(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.codec.Read(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "No refresh token"})
		return
	}

	st := &sessionTokens{tokens: h.tokens, metrics: h.metrics, refresh: refreshToken}
	set, err := st.mint(r.Context())
	if err != nil {
		writeRefreshError(w, r, h.codec, h.logger, err)
		return
	}
	if st.rotated {
		if _, err := h.codec.Write(w, r, st.refresh); err != nil {
			h.logger.Error("failed to rotate session cookie", "error", err)
		}
	}

	scopes := strings.Fields(set.Scope)
	body := testTokenBody{
		TokenValid: true,
		ExpiresIn:  set.ExpiresIn,
		Scopes:     scopes,
		Checks:     h.library.Probe(r.Context(), set.AccessToken),
	}
	for _, s := range scopes {
		if s == "user-library-read" {
			body.HasLibraryScope = true
		}
	}
	writeJSON(w, http.StatusOK, body)
}
