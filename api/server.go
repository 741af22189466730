/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog access log carrying the request ID
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters and latency by route
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/employees/*  Employees, stats, lots, register export
  /api/requests/*   Leave request lifecycle
  /api/config/*     Versioned AppConfig
  /api/admin/*      Manual job triggers, scheduler status
  /metrics          Prometheus scrape endpoint
  /healthz          Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/warp/yukyu/metrics"
)

type RouterOptions struct {
	CORSOrigins []string
	Metrics     metrics.Provider
	Logger      zerolog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware(opts.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetEmployee)
				r.Get("/stats", h.GetStats)
				r.Get("/periods", h.GetPeriods)
				r.Get("/lots", h.GetLots)
				r.Get("/requests", h.GetEmployeeRequests)
				r.Get("/audit", h.GetAudit)
				r.Get("/register.xlsx", h.DownloadRegister)
				r.Post("/generate", h.GenerateForEmployee)
			})
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRequest)
				r.Put("/", h.UpdateRequest)
				r.Delete("/", h.DeleteRequest)
				r.Post("/approve", h.ApproveRequest)
				r.Post("/finalize", h.FinalizeRequest)
				r.Post("/reject", h.RejectRequest)
			})
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/", h.ListConfigs)
			r.Post("/", h.SaveConfig)
			r.Get("/active", h.GetActiveConfig)
			r.Get("/presets", h.ListPresets)
			r.Get("/{version}", h.GetConfig)
			r.Post("/{version}/activate", h.ActivateConfig)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/expire", h.TriggerExpire)
			r.Post("/generate", h.TriggerGenerate)
			r.Get("/scheduler", h.SchedulerStatus)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
