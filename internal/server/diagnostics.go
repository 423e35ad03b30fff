package server

import (
	"net/http"

	"github.com/desertthunder/albumwall/internal/services"
	"github.com/desertthunder/albumwall/internal/shared"
)

// breakerReporter is implemented by token clients that sit behind a circuit breaker.
type breakerReporter interface {
	BreakerState() string
}

// DiagnosticsHandler reports configuration presence and liveness. It never reveals secret values.
type DiagnosticsHandler struct {
	mux    *http.ServeMux
	config *shared.Config
	tokens services.TokenExchanger
}

// NewDiagnosticsHandler builds the /debug and /healthz routes.
func NewDiagnosticsHandler(conf *shared.Config, tokens services.TokenExchanger) *DiagnosticsHandler {
	h := &DiagnosticsHandler{mux: http.NewServeMux(), config: conf, tokens: tokens}
	h.mux.HandleFunc("GET /debug", h.Debug)
	h.mux.HandleFunc("GET /healthz", h.Healthz)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *DiagnosticsHandler) Routes() []string {
	return []string{"GET /debug", "GET /healthz"}
}

func (h *DiagnosticsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type debugBody struct {
	ClientID         string `json:"client_id"`
	ClientSecret     string `json:"client_secret"`
	RedirectURI      string `json:"redirect_uri"`
	FrontendURI      string `json:"frontend_uri"`
	Environment      string `json:"environment"`
	AnalyticsEnabled bool   `json:"analytics_enabled"`
	Breaker          string `json:"breaker,omitempty"`
}

// Debug reports which credentials are present and where redirects go.
func (h *DiagnosticsHandler) Debug(w http.ResponseWriter, r *http.Request) {
	sp := h.config.Credentials.Spotify
	body := debugBody{
		ClientID:         shared.Redact(sp.ClientID),
		ClientSecret:     shared.Redact(sp.ClientSecret),
		RedirectURI:      sp.RedirectURI,
		FrontendURI:      h.config.Server.FrontendURI,
		Environment:      h.config.Server.Environment,
		AnalyticsEnabled: h.config.Analytics.Enabled,
	}
	if b, ok := h.tokens.(breakerReporter); ok {
		body.Breaker = b.BreakerState()
	}
	writeJSON(w, http.StatusOK, body)
}

// Healthz is a liveness probe.
func (h *DiagnosticsHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
