// Package linker turns catalog items into launcher shortcuts.
package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/cloudshelf/internal/models"
	"github.com/starford/cloudshelf/internal/shortcut"
	"github.com/starford/cloudshelf/internal/steam"
	"github.com/starford/cloudshelf/internal/template"
)

// Profile holds the templates a shortcut is built from.
type Profile struct {
	AppName    string `yaml:"app_name" json:"app_name"`
	Exe        string `yaml:"exe" json:"exe"`
	WorkingDir string `yaml:"working_dir" json:"working_dir"`
	Args       string `yaml:"args" json:"args"`
}

// Images stores grid artwork by extensionless file name.
type Images interface {
	Exists(name string) (bool, error)
	Fetch(ctx context.Context, url, name string) (bool, error)
}

// HeroSource looks up the hero artwork URL for a store key.
type HeroSource interface {
	HeroURL(ctx context.Context, key string) (string, error)
}

// Linker builds and refreshes managed shortcuts.
type Linker struct {
	profile   Profile
	tag       string
	steamRoot string
	home      string
	images    Images
	hero      HeroSource
	log       *slog.Logger
}

// Options configures a Linker.
type Options struct {
	Profile       Profile
	ProvenanceTag string
	SteamRoot     string
	Home          string
}

// New creates a Linker. images and hero may be nil to skip artwork.
func New(opts Options, images Images, hero HeroSource, log *slog.Logger) *Linker {
	if log == nil {
		log = slog.Default()
	}
	return &Linker{
		profile:   opts.Profile,
		tag:       opts.ProvenanceTag,
		steamRoot: opts.SteamRoot,
		home:      opts.Home,
		images:    images,
		hero:      hero,
		log:       log,
	}
}

func (l *Linker) fill(tmpl string, item models.CatalogItem) string {
	return template.Fill(tmpl, template.Vars{Item: item, SteamRoot: l.steamRoot, Home: l.home})
}

// Create builds a new shortcut for item.
//
// Artwork is best effort: when it fails the record is still returned,
// together with the artwork error.
func (l *Linker) Create(ctx context.Context, item models.CatalogItem) (*shortcut.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := shortcut.New(l.fill(l.profile.AppName, item), l.fill(l.profile.Exe, item))
	r.StartDir = l.fill(l.profile.WorkingDir, item)
	r.LaunchOptions = l.fill(l.profile.Args, item)
	r.Tags = []string{l.tag, item.StoreKey}

	return r, l.artwork(ctx, r, item)
}

// Refresh re-fills the templated fields of a copy of r. The identifier and
// every other field are kept. Missing artwork is fetched as in Create.
func (l *Linker) Refresh(ctx context.Context, r *shortcut.Record, item models.CatalogItem) (*shortcut.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := r.Clone()
	out.AppName = l.fill(l.profile.AppName, item)
	out.Exe = l.fill(l.profile.Exe, item)
	out.StartDir = l.fill(l.profile.WorkingDir, item)
	out.LaunchOptions = l.fill(l.profile.Args, item)

	return out, l.artwork(ctx, out, item)
}

func (l *Linker) artwork(ctx context.Context, r *shortcut.Record, item models.CatalogItem) error {
	if l.images == nil {
		return nil
	}
	var errs []error

	if item.PosterURL != "" {
		if _, err := l.images.Fetch(ctx, item.PosterURL, steam.ImageName(r.ID(), steam.Cover)); err != nil {
			errs = append(errs, err)
		}
	}

	if l.hero != nil {
		name := steam.ImageName(r.ID(), steam.Hero)
		ok, err := l.images.Exists(name)
		switch {
		case err != nil:
			errs = append(errs, err)
		case !ok:
			if err := l.fetchHero(ctx, item.StoreKey, name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	l.log.Warn("linker: artwork incomplete",
		slog.String("store_key", item.StoreKey),
		slog.String("error", err.Error()))
	return fmt.Errorf("linker: artwork %s: %w", item.StoreKey, err)
}

func (l *Linker) fetchHero(ctx context.Context, key, name string) error {
	url, err := l.hero.HeroURL(ctx, key)
	if err != nil {
		return err
	}
	if url == "" {
		return nil
	}
	_, err = l.images.Fetch(ctx, url, name)
	return err
}
