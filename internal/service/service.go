// Package service ties the catalog, the shortcut list and the local index
// together for one launcher user. The HTTP API, the MCP server and the CLI
// all drive the application through it.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/starford/cloudshelf/internal/appid"
	"github.com/starford/cloudshelf/internal/apperr"
	"github.com/starford/cloudshelf/internal/artwork"
	"github.com/starford/cloudshelf/internal/catalog"
	"github.com/starford/cloudshelf/internal/index"
	"github.com/starford/cloudshelf/internal/models"
	"github.com/starford/cloudshelf/internal/reconcile"
	"github.com/starford/cloudshelf/internal/shortcut"
	"github.com/starford/cloudshelf/internal/sse"
	"github.com/starford/cloudshelf/internal/steam"
)

// Catalog lists the titles available for cloud play.
type Catalog interface {
	Fetch(ctx context.Context) ([]models.CatalogItem, error)
}

// Images reads and replaces stored grid artwork.
type Images interface {
	Read(name string) ([]byte, error)
	Put(name string, data []byte) error
}

// ArtworkExts are the image formats the launcher picks up from the grid
// directory, in lookup order.
var ArtworkExts = []string{artwork.DefaultExt, ".jpg"}

// Publisher receives change notifications. *sse.Broker implements it.
type Publisher interface {
	Publish(event sse.Event)
	PublishItemState(key, state string)
	PublishChanged()
}

// Deps are the collaborators of a Service. Images and Publisher are optional.
type Deps struct {
	Session   *steam.Session
	Index     index.Index
	Catalog   Catalog
	Builder   reconcile.Builder
	Images    Images
	Publisher Publisher

	ProvenanceTag string
	Concurrency   int
	Logger        *slog.Logger
}

// ItemDetail is an item as shown to users.
type ItemDetail struct {
	models.Item
	AppID      string `json:"app_id,omitempty"`
	DetailsURL string `json:"details_url"`
}

// UserView is a launcher user, flagged when it is the active one.
type UserView struct {
	steam.User
	Active bool `json:"active"`
}

// ProgressEvent is the payload of apply.* notifications.
type ProgressEvent struct {
	BatchID string `json:"batch_id"`
	Op      string `json:"op,omitempty"`
	Key     string `json:"store_key,omitempty"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Error   string `json:"error,omitempty"`
}

// Service coordinates the engine, the shortcut file and the index.
type Service struct {
	session *steam.Session
	file    shortcut.Store
	engine  *reconcile.Engine
	db      index.Index
	catalog Catalog
	images  Images
	pub     Publisher
	log     *slog.Logger
}

// New loads the user's shortcut list, restores the cached catalog and the
// persisted toggles, and returns a ready Service. It does not contact the
// catalog; call Refresh for that.
func New(d Deps) (*Service, error) {
	if d.Session == nil || d.Index == nil {
		return nil, errors.New("service: session and index are required")
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	file := shortcut.Store{Path: d.Session.ShortcutsPath}
	records, err := file.Load()
	if err != nil {
		return nil, err
	}

	s := &Service{
		session: d.Session,
		file:    file,
		db:      d.Index,
		catalog: d.Catalog,
		images:  d.Images,
		pub:     d.Publisher,
		log:     log,
	}
	s.engine = reconcile.New(records, d.Builder, file, reconcile.Options{
		ProvenanceTag: d.ProvenanceTag,
		Concurrency:   d.Concurrency,
	}, log)

	cached, err := s.db.Catalog()
	if err != nil {
		return nil, err
	}
	if err := s.classify(cached); err != nil {
		return nil, err
	}

	log.Info("service: ready",
		slog.Uint64("account_id", uint64(d.Session.User.AccountID)),
		slog.Int("shortcuts", len(records)),
		slog.Int("cached_items", len(cached)))
	return s, nil
}

// Session returns the active user session.
func (s *Service) Session() *steam.Session {
	return s.session
}

func (s *Service) account() uint32 {
	return s.session.User.AccountID
}

// classify installs items in the engine together with the persisted
// toggles that still fit, and forgets the rest.
func (s *Service) classify(items []models.CatalogItem) error {
	saved, err := s.db.Pending(s.account())
	if err != nil {
		return err
	}
	stale, err := s.engine.Classify(items, saved)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		s.log.Info("service: dropping stale toggles", slog.Int("count", len(stale)))
		return s.db.ClearPending(s.account(), stale...)
	}
	return nil
}

// Refresh fetches the catalog, caches it and reclassifies every item.
// Persisted toggles survive the refresh when they still apply.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	if s.catalog == nil {
		return 0, errors.New("service: no catalog configured")
	}
	if s.engine.Applying() {
		return 0, fmt.Errorf("service: refresh: apply in progress: %w", apperr.ErrConflict)
	}
	items, err := s.catalog.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("service: refresh: %w", err)
	}
	// The engine refuses while an apply runs; the cache is only touched
	// after it accepted the new catalog.
	if err := s.classify(items); err != nil {
		return 0, fmt.Errorf("service: refresh: %w", err)
	}
	if err := s.db.ReplaceCatalog(items); err != nil {
		return 0, err
	}
	s.changed()
	s.log.Info("service: catalog refreshed", slog.Int("items", len(items)))
	return len(items), nil
}

// Items lists catalog items in catalog order. When states are given only
// items in one of them are returned.
func (s *Service) Items(_ context.Context, states ...models.State) []ItemDetail {
	all := s.engine.Items()
	out := make([]ItemDetail, 0, len(all))
	for _, it := range all {
		if len(states) > 0 && !slices.Contains(states, it.State) {
			continue
		}
		out = append(out, s.detail(it))
	}
	return out
}

// Item returns one item.
func (s *Service) Item(_ context.Context, key string) (ItemDetail, error) {
	it, ok := s.engine.Item(key)
	if !ok {
		return ItemDetail{}, fmt.Errorf("service: item %s: %w", key, apperr.ErrNotFound)
	}
	return s.detail(it), nil
}

// Groups counts items per state.
func (s *Service) Groups(_ context.Context) map[models.State]int {
	groups := s.engine.Groups()
	out := make(map[models.State]int, len(groups))
	for st, items := range groups {
		out[st] = len(items)
	}
	return out
}

func (s *Service) detail(it models.Item) ItemDetail {
	d := ItemDetail{Item: it, DetailsURL: catalog.DetailsURL(it.StoreKey)}
	if r, ok := s.engine.Record(it.StoreKey); ok {
		d.AppID = r.ID().String()
	}
	return d
}

// Toggle flips the pending state of key and persists it.
func (s *Service) Toggle(_ context.Context, key string) (models.State, error) {
	next, err := s.engine.Toggle(key)
	if err != nil {
		return 0, err
	}
	if err := s.db.SetPending(s.account(), key, next); err != nil {
		// Undo so memory and disk agree.
		if _, undoErr := s.engine.Toggle(key); undoErr != nil {
			s.log.Error("service: undo toggle failed",
				slog.String("store_key", key),
				slog.String("error", undoErr.Error()))
		}
		return 0, err
	}
	if s.pub != nil {
		s.pub.PublishItemState(key, next.String())
	}
	return next, nil
}

// Apply runs the pending changes and records the outcome. Progress is
// published as it happens.
func (s *Service) Apply(ctx context.Context) (reconcile.Summary, error) {
	sum, err := s.engine.Apply(ctx, s.publishProgress)
	if err != nil {
		return sum, err
	}
	if err := s.db.ClearPending(s.account()); err != nil {
		s.log.Warn("service: clear pending failed", slog.String("error", err.Error()))
	}
	if err := s.db.RecordApply(s.account(), index.ApplyRun{
		BatchID:    sum.BatchID,
		Created:    sum.Created,
		Updated:    sum.Updated,
		Removed:    sum.Removed,
		Failed:     sum.Failed,
		FinishedAt: time.Now().UTC(),
	}); err != nil {
		s.log.Warn("service: record apply failed", slog.String("error", err.Error()))
	}
	s.changed()
	return sum, nil
}

func (s *Service) publishProgress(ev reconcile.Event) {
	if s.pub == nil {
		return
	}
	p := ProgressEvent{
		BatchID: ev.BatchID,
		Op:      string(ev.Op),
		Key:     ev.Key,
		Done:    ev.Done,
		Total:   ev.Total,
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	s.pub.Publish(sse.Event{Type: ev.Kind.String(), Data: p})
}

// History returns recent Apply outcomes, newest first.
func (s *Service) History(_ context.Context, limit int) ([]index.ApplyRun, error) {
	runs, err := s.db.ApplyRuns(s.account(), limit)
	return nonNilSlice(runs), err
}

// Reload re-reads the shortcut file after an outside change.
func (s *Service) Reload(_ context.Context) error {
	records, err := s.file.Load()
	if err != nil {
		return err
	}
	if err := s.engine.Reload(records); err != nil {
		return err
	}
	s.changed()
	return nil
}

// Watch reloads the shortcut list whenever the file changes on disk, until
// ctx is cancelled. Reloads that race an Apply are skipped; Apply itself
// leaves the engine in sync with the file.
func (s *Service) Watch(ctx context.Context) error {
	if err := os.MkdirAll(s.session.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("service: watch: %w", err)
	}
	return index.Watch(ctx, s.session.ShortcutsPath, index.DefaultDebounce, s.log, func(path string) {
		err := s.Reload(ctx)
		switch {
		case errors.Is(err, apperr.ErrConflict):
			s.log.Debug("service: reload skipped during apply")
		case err != nil:
			s.log.Warn("service: reload failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		default:
			s.log.Info("service: shortcuts reloaded", slog.String("path", path))
		}
	})
}

// Users lists the launcher users of the session's installation.
func (s *Service) Users(_ context.Context) ([]UserView, error) {
	users, err := steam.Users(s.session.Root)
	if err != nil {
		return nil, err
	}
	out := make([]UserView, len(users))
	for i, u := range users {
		out[i] = UserView{User: u, Active: u.AccountID == s.account()}
	}
	return out, nil
}

// Search runs a full-text query over the cached catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	return nonNilSlice(res), err
}

// Artwork returns a stored grid image.
func (s *Service) Artwork(_ context.Context, id appid.ID, kind steam.ImageKind) ([]byte, error) {
	if s.images == nil {
		return nil, apperr.ErrNotFound
	}
	name := steam.ImageName(id, kind)
	for _, ext := range ArtworkExts {
		data, err := s.images.Read(name + ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("service: artwork %s: %w", id, apperr.ErrNotFound)
}

// SetArtwork stores a custom image for the shortcut linked to key. ext is
// one of ArtworkExts. It returns the shortcut's id.
func (s *Service) SetArtwork(_ context.Context, key string, kind steam.ImageKind, data []byte, ext string) (appid.ID, error) {
	if !slices.Contains(ArtworkExts, ext) {
		return 0, fmt.Errorf("service: artwork: unsupported format %q: %w", ext, apperr.ErrFormat)
	}
	if s.images == nil {
		return 0, errors.New("service: no artwork storage configured")
	}
	r, ok := s.engine.Record(key)
	if !ok {
		return 0, fmt.Errorf("service: artwork %s: not linked: %w", key, apperr.ErrNotFound)
	}
	name := steam.ImageName(r.ID(), kind)
	if err := s.images.Put(name+ext, data); err != nil {
		return 0, err
	}
	s.log.Info("service: artwork replaced",
		slog.String("store_key", key),
		slog.String("kind", kind.String()))
	return r.ID(), nil
}

func (s *Service) changed() {
	if s.pub != nil {
		s.pub.PublishChanged()
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
