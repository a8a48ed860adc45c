// Package artwork downloads grid images into the launcher's grid directory.
package artwork

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/cloudshelf/internal/storage"
)

// DefaultExt is appended to destinations that carry no extension.
const DefaultExt = ".png"

// FileName returns name with DefaultExt appended when it has no extension.
func FileName(name string) string {
	if filepath.Ext(name) == "" {
		return name + DefaultExt
	}
	return name
}

// Downloader fetches images over HTTP and stores them in a grid directory.
type Downloader struct {
	http  *http.Client
	store storage.Provider
	log   *slog.Logger
}

// NewDownloader creates a Downloader writing into store.
func NewDownloader(store storage.Provider, timeout time.Duration, log *slog.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Downloader{
		http:  &http.Client{Timeout: timeout},
		store: store,
		log:   log,
	}
}

// Exists reports whether the image for name is already present.
func (d *Downloader) Exists(name string) (bool, error) {
	return d.store.Exists(FileName(name))
}

// Fetch downloads url into name unless the file already exists. It reports
// whether a download took place.
func (d *Downloader) Fetch(ctx context.Context, url, name string) (bool, error) {
	name = FileName(name)
	ok, err := d.store.Exists(name)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if strings.HasPrefix(url, "//") {
		url = "https:" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("artwork: %s: %w", name, err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("artwork: %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("artwork: %s: unexpected status %d", name, resp.StatusCode)
	}

	if err := d.store.Write(name, resp.Body); err != nil {
		return false, fmt.Errorf("artwork: %s: %w", name, err)
	}
	d.log.Debug("artwork: saved", slog.String("file", name))
	return true, nil
}

// Read returns the stored image for name.
func (d *Downloader) Read(name string) ([]byte, error) {
	return d.store.Read(FileName(name))
}

// Put stores data as name, replacing any existing image.
func (d *Downloader) Put(name string, data []byte) error {
	name = FileName(name)
	if err := d.store.Write(name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("artwork: %s: %w", name, err)
	}
	return nil
}
