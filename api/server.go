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
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin frontends

ROUTE GROUPS:
  /api/spaces/*        Space and slot management
  /api/slots/*         Slot removal and availability
  /api/reservations/*  Booking, cancellation, settlement
  /api/accounts/*      Accounts and settlement history

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Space routes
		r.Route("/spaces", func(r chi.Router) {
			r.Get("/", h.ListSpaces)
			r.Post("/", h.CreateSpace)
			r.Get("/{id}", h.GetSpace)
			r.Post("/{id}/close", h.CloseSpace)
			r.Delete("/{id}", h.DeleteSpace)
			r.Get("/{id}/slots", h.ListSlots)
			r.Post("/{id}/slots", h.AddSlot)
			r.Get("/{id}/availability", h.ListAvailableSlots)
		})

		// Slot routes
		r.Route("/slots", func(r chi.Router) {
			r.Delete("/{number}", h.RemoveSlot)
			r.Get("/{number}/availability", h.CheckAvailability)
		})

		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
			r.Post("/{id}/settle", h.SettleReservation)
			r.Get("/{id}/transactions", h.GetReservationTransactions)
		})

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/transactions", h.GetAccountTransactions)
		})
	})

	return r
}
