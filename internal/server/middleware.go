package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// RequestID tags each request with an id available through [chimiddleware.GetReqID].
func RequestID() Middleware {
	return chimiddleware.RequestID
}

// RealIP replaces RemoteAddr with X-Real-IP or X-Forwarded-For when present.
func RealIP() Middleware {
	return chimiddleware.RealIP
}

// Recoverer turns handler panics into 500 responses.
func Recoverer() Middleware {
	return chimiddleware.Recoverer
}

// RequestLogger logs one line per request.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Microsecond),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}

// CORS allows the frontend origin to call the API with credentials.
// An unparsable frontend URI disables cross-origin access.
func CORS(frontendURI string) Middleware {
	var origins []string
	if u, err := url.Parse(frontendURI); err == nil && u.Scheme != "" && u.Host != "" {
		origins = append(origins, u.Scheme+"://"+u.Host)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Admin-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// RateLimit limits each client IP to requests per minute. Zero disables the limit.
func RateLimit(requests int) Middleware {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many requests"})
		}),
	)
}

// routeHandler wraps a [Handler] with extra middleware while keeping its routes.
type routeHandler struct {
	http.Handler
	routes []string
}

func (h routeHandler) Routes() []string {
	return h.routes
}

// WithMiddleware returns h wrapped in mw, applied in the order given.
func WithMiddleware(h Handler, mw ...Middleware) Handler {
	var wrapped http.Handler = h
	for i := len(mw) - 1; i >= 0; i-- {
		wrapped = mw[i](wrapped)
	}
	return routeHandler{Handler: wrapped, routes: h.Routes()}
}
