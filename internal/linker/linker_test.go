package linker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/cloudshelf/internal/appid"
	"github.com/starford/cloudshelf/internal/models"
)

type fakeImages struct {
	mu      sync.Mutex
	have    map[string]bool
	fetched []string
	err     error
}

func (f *fakeImages) Exists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.have[name], nil
}

func (f *fakeImages) Fetch(_ context.Context, url, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.have[name] {
		return false, nil
	}
	if f.have == nil {
		f.have = map[string]bool{}
	}
	f.have[name] = true
	f.fetched = append(f.fetched, name+"<-"+url)
	return true, nil
}

type fakeHero struct {
	calls int
	url   string
}

func (f *fakeHero) HeroURL(context.Context, string) (string, error) {
	f.calls++
	return f.url, nil
}

var edge = Profile{
	AppName:    "{title}",
	Exe:        "/usr/bin/flatpak",
	WorkingDir: "{home}",
	Args:       "run com.microsoft.Edge --app=https://www.xbox.com/play/launch/{storeid}",
}

func newLinker(images Images, hero HeroSource) *Linker {
	return New(Options{Profile: edge, ProvenanceTag: "xCloud", Home: "/home/deck"},
		images, hero, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreate(t *testing.T) {
	images := &fakeImages{}
	hero := &fakeHero{url: "https://img/hero.jpg"}
	l := newLinker(images, hero)

	item := models.CatalogItem{Title: "Halo Infinite", StoreKey: "ABC", PosterURL: "https://img/poster.jpg"}
	r, err := l.Create(context.Background(), item)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.ID() != appid.Generate("Halo Infinite", "/usr/bin/flatpak") {
		t.Errorf("ID = %d", r.ID())
	}
	if r.StartDir != "/home/deck" {
		t.Errorf("StartDir = %q", r.StartDir)
	}
	if r.LaunchOptions != "run com.microsoft.Edge --app=https://www.xbox.com/play/launch/ABC" {
		t.Errorf("LaunchOptions = %q", r.LaunchOptions)
	}
	if diff := cmp.Diff([]string{"xCloud", "ABC"}, r.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	want := []string{
		r.ID().String() + "p<-https://img/poster.jpg",
		r.ID().String() + "_hero<-https://img/hero.jpg",
	}
	if diff := cmp.Diff(want, images.fetched); diff != "" {
		t.Errorf("fetched (-want +got):\n%s", diff)
	}
}

func TestCreate_ArtworkFailureStillReturnsRecord(t *testing.T) {
	l := newLinker(&fakeImages{err: errors.New("network down")}, &fakeHero{url: "https://img/h"})
	r, err := l.Create(context.Background(), models.CatalogItem{Title: "T", StoreKey: "K", PosterURL: "https://img/p"})
	if r == nil {
		t.Fatal("record is nil")
	}
	if err == nil {
		t.Error("expected artwork error")
	}
}

func TestCreate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := newLinker(nil, nil).Create(ctx, models.CatalogItem{Title: "T", StoreKey: "K"})
	if r != nil || !errors.Is(err, context.Canceled) {
		t.Errorf("Create = %v, %v", r, err)
	}
}

func TestRefresh_KeepsIDAndSkipsExistingArt(t *testing.T) {
	images := &fakeImages{}
	hero := &fakeHero{url: "https://img/hero.jpg"}
	l := newLinker(images, hero)

	item := models.CatalogItem{Title: "Halo Infinite", StoreKey: "ABC", PosterURL: "https://img/poster.jpg"}
	orig, err := l.Create(context.Background(), item)
	if err != nil {
		t.Fatal(err)
	}
	orig.IsHidden = true

	item.Title = "Halo Infinite Renamed"
	got, err := l.Refresh(context.Background(), orig, item)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got == orig {
		t.Error("Refresh must return a copy")
	}
	if got.ID() != orig.ID() {
		t.Errorf("ID changed: %d -> %d", orig.ID(), got.ID())
	}
	if got.AppName != "Halo Infinite Renamed" || !got.IsHidden {
		t.Errorf("refreshed = %+v", got)
	}
	if orig.AppName != "Halo Infinite" {
		t.Error("original mutated")
	}
	if hero.calls != 1 {
		t.Errorf("hero lookups = %d, want 1", hero.calls)
	}
	if len(images.fetched) != 2 {
		t.Errorf("fetched = %v", images.fetched)
	}
}
