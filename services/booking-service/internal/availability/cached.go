package availability

import (
	"context"
	"time"

	"github.com/viccon/sturdyc"
)

type resolveFunc interface {
	Resolve(ctx context.Context, tenantID, date string) (Result, error)
}

// CachedResolver memoizes slot listings for a short TTL and collapses
// concurrent lookups for the same tenant and date into one upstream call.
// Failures are not cached. Booking never goes through it.
type CachedResolver struct {
	next  resolveFunc
	cache *sturdyc.Client[Result]
}

func NewCachedResolver(next resolveFunc, ttl time.Duration, capacity int) *CachedResolver {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &CachedResolver{
		next:  next,
		cache: sturdyc.New[Result](capacity, 8, ttl, 10),
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, tenantID, date string) (Result, error) {
	return c.cache.GetOrFetch(ctx, tenantID+"|"+date, func(ctx context.Context) (Result, error) {
		return c.next.Resolve(ctx, tenantID, date)
	})
}
