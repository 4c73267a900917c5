/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from proxy headers (rate limit key)
  3. AccessLog:  zap request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the purchasing UI

ROUTE GROUPS:
  /api/stations, /api/suppliers, /api/units   Registries
  /api/orders                                 Order ledger
  /api/daily-list                             Snapshot and price units
  /api/receiving                              Commit and unlock (rate limited)
  /api/reports                                Receiving report

SEE ALSO:
  - handlers.go:        Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	AllowedOrigins []string

	// ReceivingRateLimit is requests per minute per client IP on the
	// receiving routes. Zero disables the limit.
	ReceivingRateLimit int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(h.log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/stations", h.ListStations)

		// Supplier routes
		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.ListSuppliers)
			r.Post("/", h.CreateSupplier)
			r.Patch("/{id}", h.UpdateSupplier)
		})

		// Unit library routes
		r.Route("/units", func(r chi.Router) {
			r.Get("/", h.ListUnits)
			r.Post("/", h.CreateUnit)
			r.Patch("/{id}", h.UpdateUnit)
			r.Delete("/{id}", h.DeleteUnit)
		})

		// Order ledger routes
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.CreateOrder)
			r.Delete("/{id}", h.DeleteOrder)
		})

		// Daily list routes
		r.Route("/daily-list", func(r chi.Router) {
			r.Get("/", h.GetDailyList)
			r.Post("/", h.GenerateDailyList)
			r.Get("/price-units", h.PriceUnitOptions)
		})

		// Receiving routes
		r.Route("/receiving", func(r chi.Router) {
			if opts.ReceivingRateLimit > 0 {
				r.Use(httprate.Limit(
					opts.ReceivingRateLimit,
					time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						writeError(w, http.StatusTooManyRequests, "Too many receiving requests", nil)
					}),
				))
			}
			r.Post("/", h.CommitReceiving)
			r.Post("/unlock", h.UnlockReceiving)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/receiving", h.ReceivingReport)
		})
	})

	return r
}

// AccessLog logs one line per request with zap.
func AccessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote", r.RemoteAddr),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				if ww.Status() >= http.StatusInternalServerError {
					log.Warn("request", fields...)
					return
				}
				log.Info("request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
