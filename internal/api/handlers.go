package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cloudshelf/internal/apperr"
	"github.com/starford/cloudshelf/internal/models"
	"github.com/starford/cloudshelf/internal/service"
)

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// parseStates reads a comma separated state filter such as
// "pending_add,pending_remove".
func parseStates(raw string) ([]models.State, error) {
	if raw == "" {
		return nil, nil
	}
	var out []models.State
	for _, part := range strings.Split(raw, ",") {
		s, err := models.ParseState(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ListItems handles GET /api/items.
//
//	@Summary		List catalog items with their state
//	@Tags			items
//	@Produce		json
//	@Param			state	query		string	false	"Comma separated states"	Enums(unlinked, linked, pending_add, pending_remove)
//	@Success		200		{object}	ItemListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	states, err := parseStates(r.URL.Query().Get("state"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	items := h.svc.Items(r.Context(), states...)
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items, Total: len(items)})
}

// GetItem handles GET /api/items/{key}.
//
//	@Summary		Get a single item by store key
//	@Tags			items
//	@Produce		json
//	@Param			key	path		string	true	"Store key"
//	@Success		200	{object}	ItemDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{key} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Item(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ToggleItem handles POST /api/items/{key}/toggle.
//
//	@Summary		Queue or unqueue an item for the next apply
//	@Tags			items
//	@Produce		json
//	@Param			key	path		string	true	"Store key"
//	@Success		200	{object}	ToggleResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{key}/toggle [post]
func (h *Handler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	state, err := h.svc.Toggle(r.Context(), key)
	if err != nil {
		writeError(w, "toggle item", err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{StoreKey: key, State: state.String()})
}

// Groups handles GET /api/groups.
//
//	@Summary		Count items per state
//	@Tags			items
//	@Produce		json
//	@Success		200	{object}	GroupsResponse
//	@Security		BearerAuth
//	@Router			/groups [get]
func (h *Handler) Groups(w http.ResponseWriter, r *http.Request) {
	counts := h.svc.Groups(r.Context())
	out := make(map[string]int, len(counts))
	for s, n := range counts {
		out[s.String()] = n
	}
	writeJSON(w, http.StatusOK, GroupsResponse{Groups: out})
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Fetch the catalog and reclassify items
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	RefreshResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Refresh(r.Context())
	if errors.Is(err, apperr.ErrConflict) {
		writeError(w, "refresh", err)
		return
	}
	if err != nil {
		slog.Error("refresh failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("catalog unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Items: n})
}

// Apply handles POST /api/apply. Progress is streamed on /api/events; the
// response carries the summary once the batch is saved.
//
//	@Summary		Apply pending changes
//	@Tags			items
//	@Produce		json
//	@Success		200	{object}	ApplyResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/apply [post]
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	// A client that goes away must not abort a half-written batch.
	sum, err := h.svc.Apply(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, "apply", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// History handles GET /api/history.
//
//	@Summary		Recent apply batches
//	@Tags			items
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.History(r.Context(), limit)
	if err != nil {
		writeError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Runs: runs})
}

// Users handles GET /api/users.
//
//	@Summary		List launcher users
//	@Tags			users
//	@Produce		json
//	@Success		200	{object}	UsersResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/users [get]
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users(r.Context())
	if err != nil {
		writeError(w, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, UsersResponse{Users: users})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across the cached catalog
//	@Tags			catalog
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
