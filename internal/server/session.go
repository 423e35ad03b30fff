package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/services"
	"github.com/desertthunder/albumwall/internal/shared"
)

// SessionHandlerOpts configures a [SessionHandler].
type SessionHandlerOpts struct {
	Config  *shared.Config
	Tokens  services.TokenExchanger
	Codec   *CookieCodec
	Metrics *Metrics
	Logger  *log.Logger
	OnLogin func(LoginResult)
}

// SessionHandler serves the session endpoints.
//
// The refresh token lives only in the HttpOnly session cookie and never appears in a response body.
// Anonymous -> Authorizing (/login) -> Active (/callback) -> Anonymous (/logout or a rejected refresh).
type SessionHandler struct {
	mux     *http.ServeMux
	config  *shared.Config
	tokens  services.TokenExchanger
	codec   *CookieCodec
	metrics *Metrics
	logger  *log.Logger
	onLogin func(LoginResult)
}

// NewSessionHandler builds the handler and its routes.
func NewSessionHandler(opts SessionHandlerOpts) *SessionHandler {
	h := &SessionHandler{
		mux:     http.NewServeMux(),
		config:  opts.Config,
		tokens:  opts.Tokens,
		codec:   opts.Codec,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		onLogin: opts.OnLogin,
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	if h.logger == nil {
		h.logger = shared.NewLogger(nil)
	}
	h.mux.HandleFunc("GET /login", h.Login)
	h.mux.HandleFunc("GET /callback", h.Callback)
	h.mux.HandleFunc("GET /refresh", h.Refresh)
	h.mux.HandleFunc("GET /logout", h.Logout)
	h.mux.HandleFunc("POST /logout", h.Logout)
	h.mux.HandleFunc("GET /done", serveLoginPage)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *SessionHandler) Routes() []string {
	return []string{"GET /login", "GET /callback", "GET /refresh", "GET /logout", "POST /logout", "GET /done"}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Login starts the authorization-code flow with a random state held in a short-lived cookie.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.config.Credentials.Spotify.ClientID == "" || h.config.Credentials.Spotify.RedirectURI == "" {
		h.logger.Error("login attempted without client credentials")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Server misconfigured"})
		return
	}

	state := shared.GenerateID()
	h.codec.setState(w, r, state)
	http.Redirect(w, r, h.tokens.AuthURL(state), http.StatusFound)
}

// Callback completes the authorization-code flow and sets the session cookie.
func (h *SessionHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Warn("authorization denied", "error", providerErr)
		h.finish(w, r, "", errors.New(providerErr), providerErr)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Missing authorization code"})
		return
	}

	if c, err := r.Cookie(stateCookieName); err == nil && c.Value != "" {
		h.codec.clearState(w, r)
		if c.Value != q.Get("state") {
			h.logger.Warn("oauth state mismatch")
			h.finish(w, r, "", shared.ErrStateMismatch, "state_mismatch")
			return
		}
	}

	set, err := h.tokens.ExchangeCode(r.Context(), code, h.config.Credentials.Spotify.RedirectURI)
	h.metrics.TokenExchange("authorization_code", err)
	if errors.Is(err, shared.ErrConfig) {
		h.logger.Error("code exchange misconfigured", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Server misconfigured"})
		return
	}
	if err == nil && set.RefreshToken == "" {
		err = shared.ErrNoRefreshToken
	}
	if err != nil {
		h.logger.Error("code exchange failed", "error", err)
		h.finish(w, r, "", err, "token_exchange_failed")
		return
	}

	value, err := h.codec.Write(w, r, set.RefreshToken)
	if err != nil {
		h.logger.Error("failed to write session cookie", "error", err)
		h.finish(w, r, "", err, "server_error")
		return
	}

	h.logger.Info("session created")
	h.finish(w, r, value, nil, "")
}

// finish reports the outcome to the login hook and redirects to the frontend.
func (h *SessionHandler) finish(w http.ResponseWriter, r *http.Request, session string, err error, errParam string) {
	if h.onLogin != nil {
		h.onLogin(LoginResult{Session: session, err: err})
	}
	http.Redirect(w, r, h.frontendURL(errParam), http.StatusFound)
}

func (h *SessionHandler) frontendURL(errParam string) string {
	target := h.config.Server.FrontendURI
	if target == "" {
		target = "/"
	}
	if errParam == "" {
		return target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "/?error=" + url.QueryEscape(errParam)
	}
	q := u.Query()
	q.Set("error", errParam)
	u.RawQuery = q.Encode()
	return u.String()
}

type refreshBody struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Refresh mints a new access token from the session cookie.
//
// Any failed grant ends the session, except a misconfigured server or an open breaker, where the
// refresh token was never tried.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := h.codec.Read(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "No refresh token"})
		return
	}

	set, err := h.tokens.ExchangeRefreshToken(r.Context(), refreshToken)
	h.metrics.TokenExchange("refresh_token", err)
	if err != nil {
		h.writeRefreshError(w, r, err)
		return
	}

	if set.RefreshToken != "" {
		if _, err := h.codec.Write(w, r, set.RefreshToken); err != nil {
			h.logger.Error("failed to rotate session cookie", "error", err)
		} else {
			h.logger.Debug("session rotated")
		}
	}

	writeJSON(w, http.StatusOK, refreshBody{AccessToken: set.AccessToken, ExpiresIn: set.ExpiresIn})
}

func (h *SessionHandler) writeRefreshError(w http.ResponseWriter, r *http.Request, err error) {
	writeRefreshError(w, r, h.codec, h.logger, err)
}

// writeRefreshError maps a failed refresh-token grant onto a response.
func writeRefreshError(w http.ResponseWriter, r *http.Request, codec *CookieCodec, logger *log.Logger, err error) {
	switch {
	case errors.Is(err, shared.ErrConfig):
		logger.Error("refresh misconfigured", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Server misconfigured"})
		return
	case r.Context().Err() != nil:
		logger.Debug("refresh cancelled by client")
		return
	case errors.Is(err, shared.ErrServiceUnavailable):
		logger.Warn("token endpoint unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "Token service unavailable"})
		return
	}

	body := errorBody{Error: "Failed to refresh token"}
	var pe *shared.ProviderError
	if errors.As(err, &pe) {
		logger.Warn("refresh failed, ending session", "status", pe.Status)
		body.Details = string(pe.Body)
	} else {
		logger.Warn("refresh failed, ending session", "error", err)
	}
	codec.Clear(w, r)
	writeJSON(w, http.StatusUnauthorized, body)
}

// Logout clears the session cookie. It always succeeds.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.codec.Clear(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
