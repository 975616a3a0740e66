// Package ristretto implements an in-process TTL cache for the active model
// catalog using dgraph-io/ristretto.
package ristretto

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
)

// CatalogCache caches the active model catalog. Routing rules are never
// cached; only the catalog snapshot is, because it changes rarely and is
// read on every resolution.
type CatalogCache struct {
	c   *ristretto.Cache[string, []model.Model]
	ttl time.Duration
}

const catalogKey = "models.active"

// NewCatalogCache creates a catalog cache with the given TTL.
func NewCatalogCache(ttl time.Duration) (*CatalogCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []model.Model]{
		NumCounters: 64,
		MaxCost:     16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CatalogCache{c: c, ttl: ttl}, nil
}

// Get retrieves the cached catalog snapshot.
func (c *CatalogCache) Get() ([]model.Model, bool) {
	return c.c.Get(catalogKey)
}

// Set stores a catalog snapshot. Ristretto's Set is asynchronous; Wait makes
// the entry visible to the next Get so a cold resolver does not hit the
// database twice in a row.
func (c *CatalogCache) Set(models []model.Model) {
	c.c.SetWithTTL(catalogKey, models, 1, c.ttl)
	c.c.Wait()
}

// Invalidate drops the cached snapshot. Called after catalog writes.
func (c *CatalogCache) Invalidate() {
	c.c.Del(catalogKey)
}

// Close shuts down the cache and releases resources.
func (c *CatalogCache) Close() {
	c.c.Close()
}
