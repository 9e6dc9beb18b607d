// Package directory wraps the provider directory with a short-lived
// in-memory cache. Room assignments change rarely while dashboards
// poll the availability view continuously.
package directory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store"
)

type Cached struct {
	inner store.ProviderDirectory
	cache *gocache.Cache
}

func NewCached(inner store.ProviderDirectory, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cached{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *Cached) ListProviders(ctx context.Context, departmentID, stage string) ([]models.Provider, error) {
	key := departmentID + "/" + stage
	if cached, found := c.cache.Get(key); found {
		return cached.([]models.Provider), nil
	}
	providers, err := c.inner.ListProviders(ctx, departmentID, stage)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, providers, gocache.DefaultExpiration)
	return providers, nil
}

// Rooms extracts the room list in directory order, preserving the
// ordering contract the room allocator depends on.
func Rooms(providers []models.Provider) []string {
	rooms := make([]string, 0, len(providers))
	for _, p := range providers {
		if p.Room != "" {
			rooms = append(rooms, p.Room)
		}
	}
	return rooms
}
