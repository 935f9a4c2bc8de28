/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging (carries the request ID)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the shop-floor frontend

ROUTE GROUPS:
  /api/forms/{formType}/items            Checklist item admin
  /api/forms/{formType}/lines/{lineID}/* Daily form, submission, NCR, matrix
  /api/forms/{formType}/columns          Schema registry
  /api/forms/{formType}/ncrs             Report list
  /api/items/*, /api/columns/*, /api/ncrs/*  Edits by id
  /api/records/*                         Attribute store
  /api/scenarios/*                       Demo data (only when EnableScenarios)
  /healthz                               Store ping
  /metrics                               Prometheus

SECURITY NOTE:
  No authentication middleware. Sign-off names are taken at face value.

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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	origins := h.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/forms/{formType}", func(r chi.Router) {
			r.Get("/items", h.ListItems)
			r.Post("/items", h.CreateItem)

			r.Get("/columns", h.ListColumns)
			r.Post("/columns", h.CreateColumn)

			r.Get("/ncrs", h.ListNCRs)

			r.Route("/lines/{lineID}", func(r chi.Router) {
				r.Get("/days/{date}", h.GetDay)
				r.Post("/days/{date}/submission", h.SubmitDay)
				r.Post("/days/{date}/ncr", h.ReportNCR)
				r.Get("/matrix", h.GetMatrix)
			})
		})

		r.Route("/items", func(r chi.Router) {
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.RetireItem)
		})

		r.Route("/columns", func(r chi.Router) {
			r.Put("/{id}", h.RenameColumn)
			r.Delete("/{id}", h.RemoveColumn)
		})

		r.Put("/ncrs/{id}", h.UpdateNCR)

		if h.EnableScenarios {
			r.Get("/scenarios", h.ListScenarios)
			r.Post("/scenarios/load", h.LoadScenario)
		}

		r.Route("/records", func(r chi.Router) {
			r.Get("/values", h.ValuesFor)
			r.Get("/{recordID}/values", h.GetRecordValues)
			r.Put("/{recordID}/values", h.SaveRecord)
			r.Delete("/{recordID}/values", h.DeleteRecordValues)
			r.Put("/{recordID}/values/{columnID}", h.SetValue)
		})
	})

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
