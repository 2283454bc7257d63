/**
 * @description
 * This file sets up the HTTP router for the sync engine's operator surface
 * using the go-chi/chi router. The health check is public; every other route
 * sits behind the internal API key middleware.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new Chi router and registers the operator routes.
// internalAPIKey guards everything except /health; an empty key disables the
// guard (single-operator deployments behind a private network).
func NewRouter(h *Handler, internalAPIKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Bank sync engine is healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Get("/sync/status", h.handleSyncStatus)
		r.Post("/sync/run", h.handleSyncRun)

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/transactions", h.handleListTransactions)
			r.Get("/receipt-policy", h.handleGetReceiptPolicy)
			r.Get("/receipt-policy/history", h.handleReceiptPolicyHistory)
			r.Post("/receipt-policy", h.handleSetReceiptPolicy)
		})

		r.Get("/reports/monthly", h.handleMonthlyReport)
		r.Get("/reports/accounts", h.handleAccountSummaries)
	})

	return r
}
