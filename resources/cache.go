// ABOUTME: Per-client cache of decoded raster resources keyed by object id
// ABOUTME: Cached-url vs requested-url matching is the staleness correctness mechanism
package resources

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"
)

// LoadError reports a failed fetch or decode of a backing resource.
// Loads are not retried automatically; the caller decides what a failed
// resolution means for its operation.
type LoadError struct {
	ID  string
	URL string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("resource load failed for object %s (%s): %v", e.ID, e.URL, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type entry struct {
	img image.Image
	url string
}

// Cache maps object id to its decoded raster. Entries are refreshed
// whenever the requested url differs from the cached source url, so a
// crop or edit that replaces the backing resource never serves the old
// pixels. Strictly per-client state; Reset ties its lifecycle to
// document switches.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	client *http.Client
	group  singleflight.Group
	disk   *DiskCache
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient overrides the fetch client.
func WithHTTPClient(c *http.Client) Option {
	return func(cache *Cache) { cache.client = c }
}

// WithDiskCache adds a persistent byte cache for fetched resources, so
// reopening a board does not refetch every image.
func WithDiskCache(d *DiskCache) Option {
	return func(cache *Cache) { cache.disk = d }
}

// NewCache creates an empty resource cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the decoded raster for an object. A cached decode is
// returned only when its source url matches the requested url;
// otherwise the resource is fetched, decoded, and cached. Concurrent
// loads for the same id+url collapse into a single fetch.
func (c *Cache) Load(ctx context.Context, id, url string) (image.Image, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if ok && e.url == url {
		return e.img, nil
	}

	img, err, _ := c.group.Do(id+"\x00"+url, func() (interface{}, error) {
		// Re-check under the flight: another caller may have filled
		// the entry between the fast path and here.
		c.mu.RLock()
		e, ok := c.entries[id]
		c.mu.RUnlock()
		if ok && e.url == url {
			return e.img, nil
		}

		data, err := c.fetch(ctx, url)
		if err != nil {
			return nil, &LoadError{ID: id, URL: url, Err: err}
		}

		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, &LoadError{ID: id, URL: url, Err: fmt.Errorf("decode: %w", err)}
		}

		c.mu.Lock()
		c.entries[id] = entry{img: img, url: url}
		c.mu.Unlock()
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return img.(image.Image), nil
}

// fetch retrieves raw resource bytes, consulting the disk cache first.
func (c *Cache) fetch(ctx context.Context, url string) ([]byte, error) {
	if c.disk != nil {
		if data, ok := c.disk.Get(url); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if c.disk != nil {
		_ = c.disk.Set(url, data)
	}
	return data, nil
}

// Put stores a locally produced decode (e.g. an optimistic insert of a
// just-generated image) under the object id.
func (c *Cache) Put(id, url string, img image.Image) {
	c.mu.Lock()
	c.entries[id] = entry{img: img, url: url}
	c.mu.Unlock()
}

// Get returns the cached decode for an id regardless of source url.
func (c *Cache) Get(id string) (image.Image, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.img, true
}

// Remove drops the entry for a deleted object.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Reset clears all entries. Called on document switch.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of cached decodes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
