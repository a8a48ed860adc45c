package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cloudshelf/internal/appid"
	"github.com/starford/cloudshelf/internal/service"
	"github.com/starford/cloudshelf/internal/steam"
)

// ArtworkHandler serves grid images of linked shortcuts.
type ArtworkHandler struct {
	svc *service.Service
}

// NewArtworkHandler creates a handler reading images through svc.
func NewArtworkHandler(svc *service.Service) *ArtworkHandler {
	return &ArtworkHandler{svc: svc}
}

// Serve handles GET /api/artwork/{id}/{kind}.
//
//	@Summary		Get a stored grid image
//	@Tags			artwork
//	@Produce		png
//	@Param			id		path	string	true	"Shortcut app id"
//	@Param			kind	path	string	true	"Image slot"	Enums(cover, banner, hero, logo, icon)
//	@Success		200
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artwork/{id}/{kind} [get]
func (h *ArtworkHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id, err := appid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	kind, err := steam.ParseImageKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid image kind"))
		return
	}

	data, err := h.svc.Artwork(r.Context(), id, kind)
	if err != nil {
		writeError(w, "serve artwork", err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}
