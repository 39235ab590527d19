// Package tiered layers the in-process control-mode cache over the
// shared JetStream tier. Reads prefer the local tier; writes and
// invalidations keep the shared tier authoritative so mode changes
// propagate across replicas.
package tiered

import (
	"context"
	"time"

	"github.com/wardenhq/warden/internal/port/cache"
)

// Cache composes a local (in-process) and shared (cross-replica) tier.
type Cache struct {
	local    cache.Cache
	shared   cache.Cache
	localTTL time.Duration
}

// New builds the tiered cache. localTTL bounds how long this replica
// may serve a snapshot another replica has since invalidated, so it
// should stay well under the operator's tolerance for stale modes.
func New(local, shared cache.Cache, localTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, localTTL: localTTL}
}

// Get serves from the local tier when possible, falling back to the
// shared tier and seeding the local tier on a hit.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.shared.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	_ = c.local.Set(ctx, key, val, c.localTTL)
	return val, true, nil
}

// Set writes the shared tier first. If the shared write fails, the
// local tier is left untouched rather than ahead of it.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, key, value, ttl)
}

// Delete invalidates the shared tier before the local one. Shared
// first means a concurrent Get on this replica cannot re-seed the
// local tier from an entry that is about to disappear.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.shared.Delete(ctx, key); err != nil {
		return err
	}
	return c.local.Delete(ctx, key)
}
