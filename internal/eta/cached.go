package eta

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/example/ride-booking/internal/models"
)

// CachedClient serves repeated lookups from a Cache and collapses identical
// in-flight lookups into one upstream call. Errors are never cached.
type CachedClient struct {
	Client Client
	Cache  *Cache

	group singleflight.Group
}

func NewCachedClient(client Client, cache *Cache) *CachedClient {
	return &CachedClient{Client: client, Cache: cache}
}

func (c *CachedClient) EstimateSeconds(ctx context.Context, from, to models.Location) (float64, error) {
	if v, ok := c.Cache.Get(from, to); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(keyFor(from, to), func() (interface{}, error) {
		secs, err := c.Client.EstimateSeconds(ctx, from, to)
		if err != nil {
			return 0.0, err
		}
		c.Cache.Set(from, to, secs)
		return secs, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}
