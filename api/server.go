/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. requestLogger: Structured request logging via logrus
  4. CORS:       Cross-origin requests for the cashier frontend

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Catalog / identity
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
		})
		r.Route("/sellers", func(r chi.Router) {
			r.Get("/", h.ListSellers)
			r.Post("/", h.CreateSeller)
			r.Get("/{id}/acquisitions", h.ListSellerAcquisitions)
		})
		r.Route("/admins", func(r chi.Router) {
			r.Get("/", h.ListAdmins)
			r.Post("/", h.CreateAdmin)
		})

		// Stock batches
		r.Route("/stock-batches", func(r chi.Router) {
			r.Post("/", h.CreateBatch)
			r.Get("/today", h.ListTodayBatches)
			r.Get("/history", h.ListBatchHistory)
			r.Put("/{id}", h.UpdateBatch)
			r.Delete("/{id}", h.DeleteBatch)
		})

		// Acquisitions
		r.Route("/acquisitions", func(r chi.Router) {
			r.Post("/", h.CreateAcquisition)
			r.Get("/pending", h.ListPendingAcquisitions)
			r.Get("/{id}", h.GetAcquisition)
		})

		// Deposits and reconciliation
		r.Post("/deposits", h.CreateDeposit)
		r.Route("/line-items", func(r chi.Router) {
			r.Put("/{id}", h.UpdateLineItem)
			r.Delete("/{id}", h.DeleteLineItem)
		})

		// Demo scenarios (development only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		// Ledger
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Route("/entries", func(r chi.Router) {
				r.Get("/", h.ListEntries)
				r.Post("/", h.CreateEntry)
				r.Delete("/{id}", h.DeleteEntry)
			})
		})
	})

	return r
}

// requestLogger emits one structured line per request.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}
