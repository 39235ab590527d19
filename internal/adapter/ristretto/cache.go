// Package ristretto is the in-process tier of the control-mode cache,
// backed by dgraph-io/ristretto.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache holds serialized effective-mode snapshots close to the gate so
// most verdicts never leave the process.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New sizes the cache by total value bytes. Mode snapshots are small,
// so the counter estimate assumes ~100-byte entries.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the cached snapshot for key, if admitted.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value under key for ttl. Ristretto applies writes through
// internal buffers; Wait flushes them so a gate check issued right
// after a mode change sees the new snapshot, not the evicted one.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

// Delete drops key. Invalidation must land before the next gate check,
// so the buffered delete is flushed before returning.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	c.c.Wait()
	return nil
}

// Close releases the cache's internal goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
