// Package models defines the domain types for cloudshelf.
package models

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CatalogItem is one cloud-playable title as returned by the catalog.
type CatalogItem struct {
	Title        string `json:"title"`
	Publisher    string `json:"publisher,omitempty"`
	StoreKey     string `json:"store_key"`
	CloudTitleID string `json:"cloud_title_id,omitempty"`
	TileURL      string `json:"tile_url,omitempty"`
	PosterURL    string `json:"poster_url,omitempty"`
}

// Validate checks the fields every downstream consumer relies on.
func (c CatalogItem) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.StoreKey, validation.Required),
	)
}

// State is the reconciliation state of a catalog item.
type State uint8

const (
	// Unlinked items have no managed shortcut.
	Unlinked State = iota
	// Linked items have a managed shortcut.
	Linked
	// PendingAdd items are unlinked and queued for creation.
	PendingAdd
	// PendingRemove items are linked and queued for deletion.
	PendingRemove
)

// States lists every state in display order.
var States = []State{Unlinked, Linked, PendingAdd, PendingRemove}

func (s State) String() string {
	switch s {
	case Unlinked:
		return "unlinked"
	case Linked:
		return "linked"
	case PendingAdd:
		return "pending_add"
	case PendingRemove:
		return "pending_remove"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for _, st := range States {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("models: unknown state %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Pending reports whether s is awaiting Apply.
func (s State) Pending() bool {
	return s == PendingAdd || s == PendingRemove
}

// Item pairs a catalog entry with its current state.
type Item struct {
	CatalogItem
	State State `json:"state"`
}
