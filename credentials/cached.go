package credentials

import (
	"context"
	"time"

	ttlcache "github.com/michalmalinowski87/photo-sub013/cache"
)

// Cached memoizes resolved credentials per stage with an explicit TTL.
// Caching is opt-in so that key rotation latency is a deliberate choice, not
// a hidden property of the resolver. Errors are never cached.
type Cached struct {
	resolver *Resolver
	cache    *ttlcache.Cache[Credential]
	ttl      time.Duration
}

// NewCached wraps resolver with a per-stage credential cache.
func NewCached(resolver *Resolver, ttl time.Duration) *Cached {
	return &Cached{
		resolver: resolver,
		cache:    ttlcache.NewCache[Credential](ttl, ttl),
		ttl:      ttl,
	}
}

// Resolve returns the cached credential for stage, resolving on miss.
func (c *Cached) Resolve(ctx context.Context, stage string) (Credential, error) {
	if cred, ok := c.cache.Get(stage); ok {
		return cred, nil
	}

	cred, err := c.resolver.Resolve(ctx, stage)
	if err != nil {
		return Credential{}, err
	}
	c.cache.SetWithTTL(stage, cred, c.ttl)
	return cred, nil
}

// Invalidate drops the cached credential for stage, forcing the next Resolve
// to hit the sources again (e.g. after a rotation).
func (c *Cached) Invalidate(stage string) {
	c.cache.Delete(stage)
}

// Stop releases the cache's background cleanup goroutine.
func (c *Cached) Stop() {
	c.cache.Stop()
}
