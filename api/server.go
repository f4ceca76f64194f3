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
  1. Logger:      Request logging
  2. Recoverer:   Panic recovery (500 instead of crash)
  3. RequestID:   Unique ID per request for tracing
  4. CORS:        Cross-origin requests for frontend
  5. RequireAuth: JWT bearer verification (authenticated group only)

ROUTE GROUPS:
  /api/auth/*           Registration and login (public)
  /api/accounts/*       Account management (authenticated)
  /api/transactions/*   Transactions, reversals, statistics (authenticated)
  /healthz              Liveness probe (public)

SEE ALSO:
  - handlers.go: Handler struct and shared request parsing
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/meridian/ledger-core/auth"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, verifier *auth.Verifier) *chi.Mux {
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

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Public: registration and login
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		// Everything below requires a valid bearer token.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(verifier))

			// Account routes
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Post("/", h.CreateAccount)
				r.Get("/{id}", h.GetAccount)
				r.Put("/{id}", h.UpdateAccount)
				r.Delete("/{id}", h.DeleteAccount)
				r.Put("/{id}/balance", h.SetBalance)
			})

			// Transaction routes. Fixed segments are registered before
			// the {id} wildcards so chi matches them first.
			r.Route("/transactions", func(r chi.Router) {
				r.Post("/deposit", h.Deposit)
				r.Post("/withdraw", h.Withdraw)
				r.Post("/transfer", h.Transfer)
				r.Get("/", h.ListTransactions)
				r.Get("/limits", h.GetLimits)
				r.Get("/reversals", h.ListOwnerReversals)
				r.Get("/user/stats", h.UserStats)
				r.Get("/account/{accountId}", h.ListAccountTransactions)
				r.Get("/account/{accountId}/stats", h.AccountStats)
				r.Get("/account/{accountId}/reversals", h.ListAccountReversals)
				r.Get("/{id}", h.GetTransaction)
				r.Post("/{id}/reverse", h.ReverseTransaction)
				r.Get("/{id}/reversals", h.ListTransactionReversals)
			})
		})
	})

	return r
}
