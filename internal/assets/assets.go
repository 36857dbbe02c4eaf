// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package assets fetches the map widget's stylesheet and script once and
// keeps them so the dashboard can serve them itself.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/relabs-tech/navigation_guide/pkg/logger"
)

// maxAssetSize bounds a single download.
const maxAssetSize = 4 << 20

// ErrTooLarge is returned for an asset over the download limit. Nothing is
// cached for it.
var ErrTooLarge = errors.New("asset exceeds 4 MiB")

// Asset names a remote file.
type Asset struct {
	Name        string
	URL         string
	ContentType string
}

// FromURL derives an asset from its URL: the name is the last path element
// and the content type follows the extension.
func FromURL(raw string) (Asset, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Asset{}, fmt.Errorf("invalid asset url %q", raw)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return Asset{}, fmt.Errorf("asset url %q has no file name", raw)
	}
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Asset{Name: name, URL: raw, ContentType: ct}, nil
}

// Item is a fetched asset.
type Item struct {
	Asset
	Body      []byte
	FetchedAt time.Time
}

// Cache holds fetched assets by name.
type Cache struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]Item)}
}

// Get returns the cached asset.
func (c *Cache) Get(name string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[name]
	return it, ok
}

// Put stores an asset.
func (c *Cache) Put(it Item) {
	c.mu.Lock()
	c.items[it.Name] = it
	c.mu.Unlock()
}

// Loader downloads assets into a cache.
type Loader struct {
	client *http.Client
	cache  *Cache
	logger *logger.Logger
}

// NewLoader creates a loader writing into cache.
func NewLoader(cache *Cache, timeout time.Duration, log *logger.Logger) *Loader {
	return &Loader{
		client: &http.Client{Timeout: timeout},
		cache:  cache,
		logger: log.Named("assets"),
	}
}

// Load fetches a and caches it. An asset already in the cache is not fetched
// again.
func (l *Loader) Load(ctx context.Context, a Asset) error {
	if _, ok := l.cache.Get(a.Name); ok {
		l.logger.Debug("asset already loaded", logger.String("name", a.Name))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", a.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to load %s: unexpected status code %d", a.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", a.URL, err)
	}
	if len(body) > maxAssetSize {
		return fmt.Errorf("failed to load %s: %w", a.URL, ErrTooLarge)
	}

	l.cache.Put(Item{Asset: a, Body: body, FetchedAt: time.Now()})
	l.logger.Info("loaded asset",
		logger.String("name", a.Name),
		logger.String("url", a.URL),
		logger.Int("bytes", len(body)),
	)
	return nil
}
