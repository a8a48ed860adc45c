// Package catalog talks to the cloud gaming catalog and store services.
package catalog

import (
	"bytes"
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/cloudshelf/internal/models"
)

const (
	DefaultCatalogURL = "https://catalog.gamepass.com"
	DefaultStoreURL   = "https://emerald.xboxservices.com"

	siglID    = "1bf84c2b-0643-4591-893f-d9edb703f692"
	hydration = "RemoteLowJade0"
)

// Titles the cloud list is known to omit, and titles it lists that cannot be
// played over the cloud.
var (
	alwaysInclude = []string{"9N6639H7VGH4", "BWXKD3FFMNP3"}
	alwaysExclude = map[string]struct{}{"9P0LHV4DV2BG": {}}
)

// Options configures a Client.
type Options struct {
	CatalogURL string
	StoreURL   string
	Market     string
	Language   string
	Timeout    time.Duration
	AppName    string
	AppVersion string
}

// Client fetches catalog entries.
type Client struct {
	http *http.Client
	opts Options
	log  *slog.Logger
}

// New creates a Client. Zero-valued options fall back to the public endpoints.
func New(opts Options, log *slog.Logger) *Client {
	if opts.CatalogURL == "" {
		opts.CatalogURL = DefaultCatalogURL
	}
	if opts.StoreURL == "" {
		opts.StoreURL = DefaultStoreURL
	}
	if opts.Market == "" {
		opts.Market = "US"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.AppName == "" {
		opts.AppName = "cloudshelf"
	}
	if opts.AppVersion == "" {
		opts.AppVersion = "0.1"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
		log:  log,
	}
}

// DetailsURL returns the public store page for key.
func DetailsURL(key string) string {
	return "https://www.xbox.com/play/games/" + url.PathEscape(key)
}

// Fetch returns the cleaned, de-duplicated catalog sorted by title.
func (c *Client) Fetch(ctx context.Context) ([]models.CatalogItem, error) {
	ids, err := c.IDs(ctx)
	if err != nil {
		return nil, err
	}
	items, err := c.Details(ctx, ids)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]models.CatalogItem, 0, len(items))
	for _, it := range items {
		it.Title = CleanTitle(it.Title)
		if err := it.Validate(); err != nil {
			c.log.Warn("catalog: skipping invalid item",
				slog.String("store_key", it.StoreKey),
				slog.String("error", err.Error()))
			continue
		}
		if _, dup := seen[it.StoreKey]; dup {
			continue
		}
		seen[it.StoreKey] = struct{}{}
		out = append(out, it)
	}
	slices.SortStableFunc(out, func(a, b models.CatalogItem) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)),
			cmp.Compare(a.StoreKey, b.StoreKey),
		)
	})
	c.log.Info("catalog: fetched", slog.Int("items", len(out)))
	return out, nil
}

// CleanTitle strips edition noise and trademark symbols from a title.
func CleanTitle(title string) string {
	const suffix = " Standard Edition"
	if len(title) >= len(suffix) && strings.EqualFold(title[len(title)-len(suffix):], suffix) {
		title = title[:len(title)-len(suffix)]
	}
	return strings.NewReplacer("©", "", "®", "", "™", "").Replace(title)
}

// IDs returns the store keys of every cloud-playable title.
func (c *Client) IDs(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("id", siglID)
	q.Set("subscriptionContext", "none")
	q.Set("platformContext", "Cloud:XGPUWEB")
	q.Set("hydration", hydration)
	q.Set("market", c.opts.Market)
	q.Set("language", c.opts.Language)

	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.opts.CatalogURL+"/sigls/v3?"+q.Encode(), nil, &raw); err != nil {
		return nil, fmt.Errorf("catalog: ids: %w", err)
	}

	missing := slices.Clone(alwaysInclude)
	ids := make([]string, 0, len(raw))
	// The first element describes the list itself.
	for i, msg := range raw {
		if i == 0 {
			continue
		}
		var entry struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(msg, &entry); err != nil {
			return nil, fmt.Errorf("catalog: ids: decode entry %d: %w", i, err)
		}
		if entry.ID == "" {
			continue
		}
		missing = slices.DeleteFunc(missing, func(id string) bool { return id == entry.ID })
		if _, skip := alwaysExclude[entry.ID]; skip {
			continue
		}
		ids = append(ids, entry.ID)
	}
	return append(ids, missing...), nil
}

type productDetails struct {
	ProductTitle  string   `json:"ProductTitle"`
	PublisherName string   `json:"PublisherName"`
	XCloudTitleID string   `json:"XCloudTitleId"`
	StoreID       string   `json:"StoreId"`
	ImageTile     imageURL `json:"Image_Tile"`
	ImagePoster   imageURL `json:"Image_Poster"`
}

// Details resolves store keys to catalog items, in the order of ids.
func (c *Client) Details(ctx context.Context, ids []string) ([]models.CatalogItem, error) {
	if len(ids) == 0 {
		return []models.CatalogItem{}, nil
	}
	body, err := json.Marshal(struct {
		Products []string `json:"Products"`
	}{ids})
	if err != nil {
		return nil, fmt.Errorf("catalog: details: %w", err)
	}

	q := url.Values{}
	q.Set("hydration", hydration)
	q.Set("market", c.opts.Market)
	q.Set("language", c.opts.Language)

	var resp struct {
		Products map[string]productDetails `json:"Products"`
	}
	if err := c.do(ctx, http.MethodPost, c.opts.CatalogURL+"/v3/products?"+q.Encode(), body, &resp); err != nil {
		return nil, fmt.Errorf("catalog: details: %w", err)
	}

	items := make([]models.CatalogItem, 0, len(resp.Products))
	for _, id := range ids {
		p, ok := resp.Products[id]
		if !ok {
			continue
		}
		key := p.StoreID
		if key == "" {
			key = id
		}
		items = append(items, models.CatalogItem{
			Title:        p.ProductTitle,
			Publisher:    p.PublisherName,
			StoreKey:     key,
			CloudTitleID: p.XCloudTitleID,
			TileURL:      string(p.ImageTile),
			PosterURL:    string(p.ImagePoster),
		})
	}
	return items, nil
}

// HeroURL returns the wide hero artwork for key, or "" when the store has
// none.
func (c *Client) HeroURL(ctx context.Context, key string) (string, error) {
	q := url.Values{}
	q.Set("locale", c.opts.Language)

	var resp struct {
		ProductSummaries []struct {
			Images struct {
				SuperHeroArt imageURL `json:"superHeroArt"`
				BoxArt       imageURL `json:"boxArt"`
				Poster       imageURL `json:"poster"`
			} `json:"images"`
		} `json:"productSummaries"`
	}
	endpoint := c.opts.StoreURL + "/xboxcomfd/products/" + url.PathEscape(key) + "?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", fmt.Errorf("catalog: store details %s: %w", key, err)
	}
	if len(resp.ProductSummaries) == 0 {
		return "", nil
	}
	return string(resp.ProductSummaries[0].Images.SuperHeroArt), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("ms-cv", correlationVector())
	req.Header.Set("calling-app-name", c.opts.AppName)
	req.Header.Set("calling-app-version", c.opts.AppVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// correlationVector returns a fresh base.counter correlation vector.
func correlationVector() string {
	id := uuid.New()
	base := base64.StdEncoding.EncodeToString(id[:])
	base = strings.NewReplacer("+", "", "/", "", "=", "").Replace(base)
	return base + ".0"
}
