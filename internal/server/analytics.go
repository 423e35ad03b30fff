package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
)

const notConfiguredMessage = "Analytics storage is not configured"

// AnalyticsHandler records logins reported by clients and serves an admin summary.
type AnalyticsHandler struct {
	mux    *http.ServeMux
	conf   shared.AnalyticsConfig
	store  AnalyticsStore
	logger *log.Logger
	now    func() time.Time
}

// NewAnalyticsHandler builds the /track-login and /analytics routes. store may be nil.
func NewAnalyticsHandler(conf shared.AnalyticsConfig, store AnalyticsStore, logger *log.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	h := &AnalyticsHandler{mux: http.NewServeMux(), conf: conf, store: store, logger: logger, now: time.Now}
	h.mux.HandleFunc("POST /track-login", h.TrackLogin)
	h.mux.HandleFunc("GET /analytics", h.Summary)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *AnalyticsHandler) Routes() []string {
	return []string{"POST /track-login", "GET /analytics"}
}

func (h *AnalyticsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type trackLoginRequest struct {
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

type trackLoginBody struct {
	OK       bool `json:"ok"`
	Recorded bool `json:"recorded"`
}

// TrackLogin stores a login event. Without a store the event is acknowledged and dropped.
func (h *AnalyticsHandler) TrackLogin(w http.ResponseWriter, r *http.Request) {
	var req trackLoginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "userId is required"})
		return
	}

	if h.store == nil || !h.conf.Enabled {
		writeJSON(w, http.StatusOK, trackLoginBody{OK: true})
		return
	}

	at := h.now().UTC()
	if req.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			at = t.UTC()
		}
	}

	if err := h.store.Create(models.NewLoginEvent(req.UserID, at)); err != nil {
		h.logger.Error("failed to record login", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to record login"})
		return
	}
	writeJSON(w, http.StatusOK, trackLoginBody{OK: true, Recorded: true})
}

// Summary returns login totals. When an admin key is configured it must be sent as X-Admin-Key.
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.conf.AdminKey != "" {
		got := r.Header.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.conf.AdminKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
			return
		}
	}

	if h.store == nil || !h.conf.Enabled {
		writeJSON(w, http.StatusOK, models.Analytics{Message: notConfiguredMessage})
		return
	}

	summary, err := h.store.Summary(h.now())
	if err != nil {
		h.logger.Error("failed to summarise logins", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to load analytics"})
		return
	}
	summary.Configured = true
	writeJSON(w, http.StatusOK, summary)
}
