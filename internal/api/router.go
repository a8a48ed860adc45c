package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cloudshelf/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *service.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ah := NewArtworkHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/items", h.ListItems)
	r.Get("/items/{key}", h.GetItem)
	r.Post("/items/{key}/toggle", h.ToggleItem)
	r.Get("/groups", h.Groups)

	r.Post("/refresh", h.Refresh)
	r.Post("/apply", h.Apply)
	r.Get("/history", h.History)

	r.Get("/users", h.Users)
	r.Get("/search", h.Search)

	r.Get("/artwork/{id}/{kind}", ah.Serve)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
