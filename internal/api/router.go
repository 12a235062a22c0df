// Package api wires the HTTP routes of the transaction tax report backend.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/handlers"
	custommiddleware "github.com/ndewijer/Transaction-Tax-Report-Backend/internal/api/middleware"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/config"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(systemService *service.SystemService, taxReportService *service.TaxReportService, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	taxReportHandler := handlers.NewTaxReportHandler(taxReportService)
	operationsHandler := handlers.NewOperationsHandler(taxReportService)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		// Everything below acts for a user and needs authentication
		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.APIKeyMiddleware)
			r.Use(custommiddleware.UserIDMiddleware)

			r.Route("/tax-report", func(r chi.Router) {
				r.Get("/", taxReportHandler.GetTaxReport)
				r.Post("/background", taxReportHandler.StartBackground)
				r.Get("/progress", taxReportHandler.GetProgress)
				r.With(custommiddleware.ValidateUUIDMiddleware).Get("/jobs/{uuid}", taxReportHandler.GetJob)
			})

			r.Post("/operations/interrupt", operationsHandler.Interrupt)
			r.Post("/session/end", operationsHandler.EndSession)
		})
	})

	return r
}
