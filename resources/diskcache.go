// ABOUTME: Badger-backed byte cache for fetched resource payloads
// ABOUTME: Keyed by source url so replaced resources never collide
package resources

import (
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/dgraph-io/badger/v3"
)

// DefaultDiskCachePath returns the resource cache directory under the
// XDG cache home.
func DefaultDiskCachePath() string {
	return filepath.Join(xdg.CacheHome, "mural", "resources")
}

// DiskCache stores raw resource bytes on disk keyed by source url.
// Purely an optimization layer under Cache: a miss just means a
// refetch, and errors on write are ignored by the caller.
type DiskCache struct {
	db *badger.DB
}

// OpenDiskCache opens (or creates) the byte cache at path.
func OpenDiskCache(path string) (*DiskCache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DiskCache{db: db}, nil
}

// Get returns the cached bytes for a url.
func (d *DiskCache) Get(url string) ([]byte, bool) {
	var data []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(url))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores bytes for a url.
func (d *DiskCache) Set(url string, data []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(url), data)
	})
}

// Close closes the underlying store.
func (d *DiskCache) Close() error {
	return d.db.Close()
}
