package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/cloudshelf/internal/models"
)

type fakeService struct {
	t        *testing.T
	sigls    string
	products string
	store    map[string]string
	status   int
	requests []*http.Request
	bodies   []string
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, "boom")
		return
	}
	switch {
	case r.URL.Path == "/sigls/v3":
		_, _ = io.WriteString(w, f.sigls)
	case r.URL.Path == "/v3/products" && r.Method == http.MethodPost:
		_, _ = io.WriteString(w, f.products)
	case strings.HasPrefix(r.URL.Path, "/xboxcomfd/products/"):
		key := strings.TrimPrefix(r.URL.Path, "/xboxcomfd/products/")
		doc, ok := f.store[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, doc)
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL)
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, f *fakeService) *Client {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(Options{
		CatalogURL: srv.URL,
		StoreURL:   srv.URL,
		Market:     "CA",
		Language:   "en-CA",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIDs(t *testing.T) {
	f := &fakeService{sigls: `[
		{"siglId":"1bf84c2b","title":"Cloud","description":"header"},
		{"id":"AAA"},
		{"id":"9P0LHV4DV2BG"},
		{"id":"BWXKD3FFMNP3"},
		{"id":"BBB"}
	]`}
	c := newTestClient(t, f)

	ids, err := c.IDs(context.Background())
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	want := []string{"AAA", "BWXKD3FFMNP3", "BBB", "9N6639H7VGH4"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}

	r := f.requests[0]
	if got := r.URL.Query().Get("market"); got != "CA" {
		t.Errorf("market = %q", got)
	}
	if got := r.URL.Query().Get("language"); got != "en-CA" {
		t.Errorf("language = %q", got)
	}
	cv := r.Header.Get("ms-cv")
	if !strings.HasSuffix(cv, ".0") || strings.ContainsAny(cv, "+/=") {
		t.Errorf("ms-cv = %q", cv)
	}
	if r.Header.Get("calling-app-name") == "" || r.Header.Get("calling-app-version") == "" {
		t.Error("calling-app headers missing")
	}
}

func TestDetails(t *testing.T) {
	f := &fakeService{products: `{"Products":{
		"BBB":{"ProductTitle":"Beta","StoreId":"BBB","Image_Poster":{"URL":"//store-images.example/b.png"}},
		"AAA":{"ProductTitle":"Alpha","PublisherName":"Pub","XCloudTitleId":"ALPHA","StoreId":"AAA",
		       "Image_Tile":"https://img/a_tile.png","Image_Poster":{"url":"https://img/a.png"}}
	}}`}
	c := newTestClient(t, f)

	items, err := c.Details(context.Background(), []string{"AAA", "BBB", "CCC"})
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	want := []models.CatalogItem{
		{Title: "Alpha", Publisher: "Pub", StoreKey: "AAA", CloudTitleID: "ALPHA",
			TileURL: "https://img/a_tile.png", PosterURL: "https://img/a.png"},
		{Title: "Beta", StoreKey: "BBB", PosterURL: "https://store-images.example/b.png"},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("items (-want +got):\n%s", diff)
	}

	var sent struct{ Products []string }
	if err := json.Unmarshal([]byte(f.bodies[0]), &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if diff := cmp.Diff([]string{"AAA", "BBB", "CCC"}, sent.Products); diff != "" {
		t.Errorf("request products (-want +got):\n%s", diff)
	}
}

func TestFetch_CleansDedupesAndSorts(t *testing.T) {
	f := &fakeService{
		sigls: `[{"siglId":"x"},{"id":"K1"},{"id":"K2"},{"id":"K3"},{"id":"K1"}]`,
		products: `{"Products":{
			"K1":{"ProductTitle":"Zeta™ Standard Edition","StoreId":"K1"},
			"K2":{"ProductTitle":"alpha®","StoreId":"K2"},
			"K3":{"ProductTitle":"","StoreId":"K3"},
			"9N6639H7VGH4":{"ProductTitle":"GoldenEye 007","StoreId":"9N6639H7VGH4"},
			"BWXKD3FFMNP3":{"ProductTitle":"Rare Replay","StoreId":"BWXKD3FFMNP3"}
		}}`,
	}
	c := newTestClient(t, f)

	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	var titles []string
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	want := []string{"alpha", "GoldenEye 007", "Rare Replay", "Zeta"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("titles (-want +got):\n%s", diff)
	}
}

func TestHeroURL(t *testing.T) {
	f := &fakeService{store: map[string]string{
		"AAA":   `{"productSummaries":[{"images":{"superHeroArt":{"url":"//img/hero.jpg"}}}]}`,
		"EMPTY": `{"productSummaries":[]}`,
	}}
	c := newTestClient(t, f)

	got, err := c.HeroURL(context.Background(), "AAA")
	if err != nil || got != "https://img/hero.jpg" {
		t.Errorf("HeroURL = %q, %v", got, err)
	}
	if got, err := c.HeroURL(context.Background(), "EMPTY"); err != nil || got != "" {
		t.Errorf("HeroURL(empty) = %q, %v", got, err)
	}
	if got := f.requests[0].URL.Query().Get("locale"); got != "en-CA" {
		t.Errorf("locale = %q", got)
	}
	if _, err := c.HeroURL(context.Background(), "MISSING"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestNon200IsError(t *testing.T) {
	c := newTestClient(t, &fakeService{status: http.StatusServiceUnavailable})
	_, err := c.IDs(context.Background())
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want status in message", err)
	}
}

func TestCleanTitle(t *testing.T) {
	cases := map[string]string{
		"Halo Infinite":                   "Halo Infinite",
		"Forza Horizon 5 Standard Edition": "Forza Horizon 5",
		"Thing standard edition":          "Thing",
		"Minecraft Legends™":              "Minecraft Legends",
		"Brand® Game© Name™":              "Brand Game Name",
		"Standard Edition":                "Standard Edition",
	}
	for in, want := range cases {
		if got := CleanTitle(in); got != want {
			t.Errorf("CleanTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetailsURL(t *testing.T) {
	if got := DetailsURL("9NP1P1WFS0LB"); got != "https://www.xbox.com/play/games/9NP1P1WFS0LB" {
		t.Errorf("DetailsURL = %q", got)
	}
}
