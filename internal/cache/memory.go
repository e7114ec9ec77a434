package cache

import (
	"context"
	"time"

	"github.com/viccon/sturdyc"
)

const (
	defaultMemoryShards    = 64
	defaultEvictionPercent = 10
	defaultMemoryRetention = 24 * time.Hour
	defaultMemoryCapacity  = 10000
)

// MemoryConfig configures the in-process cache.
type MemoryConfig struct {
	// Capacity is the maximum number of entries held.
	Capacity int
	// Retention is the longest an entry may live. Entries written with a zero
	// ttl, or a ttl above Retention, expire after Retention.
	Retention time.Duration
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryClient is an in-process Client backed by a sharded sturdyc cache.
// sturdyc applies one TTL to the whole client, so the per-entry ttl is
// tracked alongside the value and checked on read.
type MemoryClient struct {
	client    *sturdyc.Client[memoryEntry]
	retention time.Duration
	now       func() time.Time
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient constructs a MemoryClient, applying defaults to zero fields.
func NewMemoryClient(cfg MemoryConfig) *MemoryClient {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultMemoryCapacity
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultMemoryRetention
	}
	return &MemoryClient{
		client:    sturdyc.New[memoryEntry](cfg.Capacity, defaultMemoryShards, cfg.Retention, defaultEvictionPercent),
		retention: cfg.Retention,
		now:       time.Now,
	}
}

// Get returns a copy of the stored bytes or ErrMiss.
func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := c.client.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !c.now().Before(entry.expiresAt) {
		c.client.Delete(key)
		return nil, ErrMiss
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores a copy of value. ttl is capped at the configured retention.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.retention {
		ttl = c.retention
	}
	c.client.Set(key, memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	})
	return nil
}

// Delete removes key.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.client.Delete(key)
	return nil
}
