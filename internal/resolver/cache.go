// file: internal/resolver/cache.go

package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"fedgate/internal/activity"
	"fedgate/internal/logger"
)

// Cache is the in-process actor cache in front of the store. Entries are
// JSON encoded actors keyed by the IRI they were looked up under.
type Cache struct {
	cache  *bigcache.BigCache
	logger *logger.Logger
}

// NewCache creates a cache whose entries live for ttl. maxEntrySize is a
// sizing hint in bytes for a typical encoded actor.
func NewCache(ctx context.Context, ttl time.Duration, maxEntrySize int, log *logger.Logger) (*Cache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %v", ttl)
	}

	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = ttl / 2
	if maxEntrySize > 0 {
		cfg.MaxEntrySize = maxEntrySize
	}
	cfg.Verbose = false

	bc, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create actor cache: %w", err)
	}

	return &Cache{cache: bc, logger: log}, nil
}

// Get returns the cached actor for iri, if any
func (c *Cache) Get(iri string) (*activity.Actor, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.cache.Get(iri)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			c.logger.Debug("actor cache read failed", "iri", iri, "error", err)
		}
		return nil, false
	}

	actor, err := activity.DecodeActor(data)
	if err != nil {
		c.logger.Warn("evicting undecodable cache entry", "iri", iri, "error", err)
		_ = c.cache.Delete(iri)
		return nil, false
	}
	return actor, true
}

// Set stores actor under iri
func (c *Cache) Set(iri string, actor *activity.Actor) {
	if c == nil || actor == nil {
		return
	}

	data, err := activity.EncodeActor(actor)
	if err != nil {
		c.logger.Warn("failed to encode actor for cache", "iri", iri, "error", err)
		return
	}
	if err := c.cache.Set(iri, data); err != nil {
		c.logger.Warn("failed to cache actor", "iri", iri, "error", err)
	}
}

// Delete drops iri from the cache
func (c *Cache) Delete(iri string) {
	if c == nil {
		return
	}
	if err := c.cache.Delete(iri); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		c.logger.Debug("actor cache delete failed", "iri", iri, "error", err)
	}
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// Close releases the cache's background cleaner
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.cache.Close()
}
