package http

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simaogato/bountyflow-backend/internal/logging"
	"github.com/simaogato/bountyflow-backend/internal/metrics"
)

// RouterOptions configures the middleware around the API
type RouterOptions struct {
	APIToken       string // Empty disables bearer authentication
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler // Defaults to promhttp.Handler()
}

// NewRouter mounts the REST API under /api/v1
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	logger := logging.OrDefault(opts.Logger)
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger, opts.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(bearerAuth(opts.APIToken))

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.registerAccount)
			r.Get("/", h.listAccounts)
			r.Get("/{id}", h.getAccount)
			r.Get("/{id}/entries", h.listEntries)
			r.Get("/{id}/statistics", h.userStatistics)
			r.Put("/{id}/balance", h.setBalance)
			r.Post("/{id}/deposit", h.deposit)
			r.Post("/{id}/sync", h.syncBalance)
		})

		r.Route("/bounties", func(r chi.Router) {
			r.Post("/", h.openBounty)
			r.Get("/", h.listBounties)
			r.Get("/search", h.searchBounties)
			r.Get("/statistics", h.bountyStatistics)
			r.Get("/status/{status}", h.bountiesByStatus)
			r.Get("/funder/{id}", h.bountiesByAccount("funder"))
			r.Get("/developer/{id}", h.bountiesByAccount("developer"))
			r.Get("/contributor/{id}", h.bountiesByAccount("contributor"))
			r.Get("/{id}", h.getBounty)
			r.Get("/{id}/contributions", h.listContributions)
			r.Get("/{id}/developer-secret", h.developerSecret)
			r.Post("/{id}/boost", h.boostBounty)
			r.Post("/{id}/accept", h.acceptBounty)
			r.Post("/{id}/resume", h.resumeAcceptance)
			r.Post("/{id}/claim", h.claimBounty)
			r.Post("/{id}/cancel", h.cancelBounty)
			r.Post("/{id}/recover", h.recoverRelease)
		})

		r.Get("/platform/statistics", h.platformStatistics)
		r.Post("/platform/reconcile", h.reconcile)
	})

	return r
}

// requestLogger logs each request and observes its latency under the matched route pattern
func requestLogger(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveRequest("http", route, strconv.Itoa(status), started)

			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Float64("duration_ms", float64(time.Since(started).Microseconds())/1000),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, r, http.StatusUnauthorized, "unauthenticated", "invalid or missing token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
