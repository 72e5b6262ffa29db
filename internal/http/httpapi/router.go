// Package httpapi assembles the operational HTTP router.
package httpapi

import (
	"net/http"

	"photobot/internal/http/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/stats", app.Stats)

	return r
}
