package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/md-rashed-zaman/tenantbook/libs/httpx"
)

// NewRouter mounts the admin and public APIs under /api/v1. Callers add
// health and metrics routes on the returned router.
func NewRouter(admin *AdminHandler, public *PublicHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tenants", admin.Routes)
		r.Route("/public/tenants", public.Routes)
	})
	return r
}
