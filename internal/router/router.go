// Package router maps the bridge HTTP endpoints.
package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/invertase/react-native-firebase/internal/handlers"
	"github.com/invertase/react-native-firebase/internal/middleware"
	"github.com/invertase/react-native-firebase/internal/session"
)

func New(
	h *handlers.Handler,
	tokens *session.Tokens,
	app http.Handler,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)

	r.Get("/healthz", h.HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tokens, logger))

		r.Get("/bridge", h.HandleWS)
		r.Get("/apps", h.HandleApps)
		r.Post("/call", h.HandleCall)
	})

	// The application page is served from every other path.
	if app != nil {
		r.NotFound(app.ServeHTTP)
	}

	return r
}
