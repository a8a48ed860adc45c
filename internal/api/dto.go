package api

import (
	"github.com/starford/cloudshelf/internal/index"
	"github.com/starford/cloudshelf/internal/reconcile"
	"github.com/starford/cloudshelf/internal/service"
)

// ItemDetail is a catalog item with its state (aliased from the domain layer).
type ItemDetail = service.ItemDetail

// ItemListResponse wraps item listings.
type ItemListResponse struct {
	Items []ItemDetail `json:"items" validate:"required"`
	Total int          `json:"total" example:"42" validate:"required"`
}

// ToggleResponse reports the state an item moved to.
type ToggleResponse struct {
	StoreKey string `json:"store_key" example:"9NP1P1WFS0LB" validate:"required"`
	State    string `json:"state" example:"pending_add" validate:"required"`
}

// GroupsResponse counts items per state.
type GroupsResponse struct {
	Groups map[string]int `json:"groups" validate:"required"`
}

// RefreshResponse is returned after the catalog was fetched.
type RefreshResponse struct {
	Items int `json:"items" example:"412" validate:"required"`
}

// ApplyResponse summarises an Apply batch.
type ApplyResponse = reconcile.Summary

// HistoryResponse lists recent Apply batches.
type HistoryResponse struct {
	Runs []index.ApplyRun `json:"runs" validate:"required"`
}

// UsersResponse lists launcher users.
type UsersResponse struct {
	Users []service.UserView `json:"users" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}
