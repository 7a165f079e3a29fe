package services

import (
	"context"
	"time"

	"roomwatch/internal/models"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// LatestFrameReader is the part of the frame store the cache fronts
type LatestFrameReader interface {
	LatestFrame(ctx context.Context, room string) (*models.Frame, error)
}

// FrameCache collapses concurrent dashboard polls for the same room into one store read
// per TTL window. Misses (ErrNoFrame included) are not cached.
type FrameCache struct {
	store LatestFrameReader
	cache *cache.Cache
	group singleflight.Group
}

// NewFrameCache creates a cache whose entries live for ttl
func NewFrameCache(store LatestFrameReader, ttl time.Duration) *FrameCache {
	if ttl <= 0 {
		ttl = 500 * time.Millisecond
	}
	return &FrameCache{
		store: store,
		cache: cache.New(ttl, 10*ttl),
	}
}

// LatestFrame returns the newest realtime frame for a room
func (c *FrameCache) LatestFrame(ctx context.Context, room string) (*models.Frame, error) {
	if cached, ok := c.cache.Get(room); ok {
		return cached.(*models.Frame), nil
	}

	v, err, _ := c.group.Do(room, func() (interface{}, error) {
		// a read that finished while this caller was missing the cache
		if cached, ok := c.cache.Get(room); ok {
			return cached, nil
		}
		frame, err := c.store.LatestFrame(ctx, room)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(room, frame)
		return frame, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Frame), nil
}

// Invalidate drops the cached frame for a room
func (c *FrameCache) Invalidate(room string) {
	c.cache.Delete(room)
}
