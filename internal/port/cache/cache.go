// Package cache defines the port the control gate reads effective-mode
// snapshots through. Implementations sit behind it as tiers: an
// in-process store for speed, a shared store for cross-replica
// invalidation, or both composed.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized snapshots under opaque keys. A miss is
// (nil, false, nil); errors are reserved for backend failures, and
// deleting an absent key is not one.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
