package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/cloudshelf/internal/artwork"
	"github.com/starford/cloudshelf/internal/linker"
	"github.com/starford/cloudshelf/internal/models"
	"github.com/starford/cloudshelf/internal/service"
	"github.com/starford/cloudshelf/internal/shortcut"
	"github.com/starford/cloudshelf/internal/steam"
	"github.com/starford/cloudshelf/internal/storage"
	"github.com/starford/cloudshelf/internal/testutil"
)

type stubCatalog struct {
	items []models.CatalogItem
	err   error
}

func (s *stubCatalog) Fetch(context.Context) ([]models.CatalogItem, error) {
	return s.items, s.err
}

type env struct {
	svc    *service.Service
	router http.Handler
	grid   storage.Provider
	cat    *stubCatalog
}

// testEnv sets up a temp launcher install, SQLite DB, service and router.
// An empty token means auth is disabled.
func testEnv(t *testing.T, token string) *env {
	t.Helper()
	return testEnvWithSSE(t, token != "", token, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := testutil.TestSteam(t)
	grid := testutil.TestGrid(t, session)
	cat := &stubCatalog{items: testutil.Catalog()}

	svc, err := service.New(service.Deps{
		Session: session,
		Index:   testutil.TestDB(t),
		Catalog: cat,
		Builder: linker.New(linker.Options{
			Profile:       linker.Profile{AppName: "{title}", Exe: "/usr/bin/flatpak"},
			ProvenanceTag: "xCloud",
		}, nil, nil, log),
		Images:        artwork.NewDownloader(grid, 0, log),
		ProvenanceTag: "xCloud",
		Logger:        log,
	})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	return &env{
		svc:    svc,
		router: NewRouter(svc, authEnabled, token, sseHandler),
		grid:   grid,
		cat:    cat,
	}
}

func (e *env) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) refresh(t *testing.T) {
	t.Helper()
	if w := e.do(t, http.MethodPost, "/refresh"); w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", w.Code, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestRefreshAndListItems(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/refresh")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", w.Code)
	}
	if got := decode[RefreshResponse](t, w); got.Items != 3 {
		t.Errorf("refreshed = %d", got.Items)
	}

	w = e.do(t, http.MethodGet, "/items")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[ItemListResponse](t, w)
	if list.Total != 3 || len(list.Items) != 3 {
		t.Fatalf("list = %+v", list)
	}
	if list.Items[0].Title != "Forza Horizon 5" || list.Items[0].State != models.Unlinked {
		t.Errorf("first item = %+v", list.Items[0])
	}
	if list.Items[0].DetailsURL == "" {
		t.Error("details_url missing")
	}
}

func TestRefresh_CatalogDown(t *testing.T) {
	e := testEnv(t, "")
	e.cat.err = errors.New("offline")
	if w := e.do(t, http.MethodPost, "/refresh"); w.Code != http.StatusBadGateway {
		t.Errorf("refresh status = %d, want 502", w.Code)
	}
}

func TestListItems_StateFilter(t *testing.T) {
	e := testEnv(t, "")
	e.refresh(t)
	e.do(t, http.MethodPost, "/items/9NP1P1WFS0LB/toggle")

	list := decode[ItemListResponse](t, e.do(t, http.MethodGet, "/items?state=pending_add"))
	if list.Total != 1 || list.Items[0].StoreKey != "9NP1P1WFS0LB" {
		t.Errorf("filtered = %+v", list)
	}
	list = decode[ItemListResponse](t, e.do(t, http.MethodGet, "/items?state=unlinked,linked"))
	if list.Total != 2 {
		t.Errorf("unlinked+linked = %d", list.Total)
	}
	if w := e.do(t, http.MethodGet, "/items?state=bogus"); w.Code != http.StatusBadRequest {
		t.Errorf("bad filter = %d, want 400", w.Code)
	}
}

func TestToggleItem(t *testing.T) {
	e := testEnv(t, "")
	e.refresh(t)

	w := e.do(t, http.MethodPost, "/items/9NP1P1WFS0LB/toggle")
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", w.Code)
	}
	if got := decode[ToggleResponse](t, w); got.State != "pending_add" {
		t.Errorf("state = %q", got.State)
	}

	w = e.do(t, http.MethodPost, "/items/9NP1P1WFS0LB/toggle")
	if got := decode[ToggleResponse](t, w); got.State != "unlinked" {
		t.Errorf("second toggle state = %q", got.State)
	}
}

func TestToggleItem_NotFound(t *testing.T) {
	e := testEnv(t, "")
	e.refresh(t)
	if w := e.do(t, http.MethodPost, "/items/NOPE/toggle"); w.Code != http.StatusNotFound {
		t.Errorf("toggle unknown = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/items/NOPE"); w.Code != http.StatusNotFound {
		t.Errorf("get unknown = %d, want 404", w.Code)
	}
}

func TestApply(t *testing.T) {
	e := testEnv(t, "")
	e.refresh(t)
	e.do(t, http.MethodPost, "/items/9MW9469V91LM/toggle")

	w := e.do(t, http.MethodPost, "/apply")
	if w.Code != http.StatusOK {
		t.Fatalf("apply status = %d, body = %s", w.Code, w.Body.String())
	}
	sum := decode[ApplyResponse](t, w)
	if sum.Created != 1 || sum.BatchID == "" {
		t.Errorf("summary = %+v", sum)
	}

	item := decode[ItemDetail](t, e.do(t, http.MethodGet, "/items/9MW9469V91LM"))
	if item.State != models.Linked || item.AppID == "" {
		t.Errorf("item = %+v", item)
	}

	hist := decode[HistoryResponse](t, e.do(t, http.MethodGet, "/history"))
	if len(hist.Runs) != 1 || hist.Runs[0].BatchID != sum.BatchID {
		t.Errorf("history = %+v", hist)
	}

	groups := decode[GroupsResponse](t, e.do(t, http.MethodGet, "/groups"))
	if groups.Groups["linked"] != 1 || groups.Groups["unlinked"] != 2 || groups.Groups["pending_add"] != 0 {
		t.Errorf("groups = %v", groups.Groups)
	}
}

func TestUsersEndpoint(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodGet, "/users")
	if w.Code != http.StatusOK {
		t.Fatalf("users status = %d", w.Code)
	}
	users := decode[UsersResponse](t, w).Users
	if len(users) != 2 {
		t.Fatalf("users = %+v", users)
	}
	active := 0
	for _, u := range users {
		if u.Active {
			active++
			if u.AccountID != testutil.AccountID {
				t.Errorf("active user = %d", u.AccountID)
			}
		}
	}
	if active != 1 {
		t.Errorf("active users = %d", active)
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := testEnv(t, "")
	e.refresh(t)

	w := e.do(t, http.MethodGet, "/search?q=hollow")
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	res := decode[SearchResponse](t, w).Results
	if len(res) != 1 || res[0].StoreKey != "9MW9469V91LM" {
		t.Errorf("results = %+v", res)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/search"); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestArtwork(t *testing.T) {
	e := testEnv(t, "")
	id := shortcut.New("Halo Infinite", "/usr/bin/flatpak").ID()
	target := "/artwork/" + id.String() + "/hero"

	if w := e.do(t, http.MethodGet, target); w.Code != http.StatusNotFound {
		t.Errorf("missing artwork = %d, want 404", w.Code)
	}

	png := []byte("\x89PNG\r\n\x1a\nrest")
	name := artwork.FileName(steam.ImageName(id, steam.Hero))
	if err := e.grid.Write(name, bytes.NewReader(png)); err != nil {
		t.Fatal(err)
	}
	w := e.do(t, http.MethodGet, target)
	if w.Code != http.StatusOK {
		t.Fatalf("artwork status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), png) {
		t.Error("body differs")
	}
}

func TestArtwork_BadRequest(t *testing.T) {
	e := testEnv(t, "")
	for _, target := range []string{"/artwork/abc/hero", "/artwork/123/poster"} {
		if w := e.do(t, http.MethodGet, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", target, w.Code)
		}
	}
}

// Auth tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret")
	if w := e.do(t, http.MethodGet, "/items"); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodPost, "/apply", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	e := testEnv(t, "secret")
	if w := e.do(t, http.MethodGet, "/items?access_token=secret"); w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}
	w := e.do(t, http.MethodPost, "/refresh?access_token=secret")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("401 without WWW-Authenticate")
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/items"); w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes stream headers and blocks until the request ends.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithSSE(t, true, "secret", blockingSSE)
	if w := e.do(t, http.MethodGet, "/events"); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
