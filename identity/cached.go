package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	metrics "github.com/hashicorp/go-metrics"
	"golang.org/x/sync/singleflight"
)

// CacheConfig sizes a CachedResolver.
type CacheConfig struct {
	TTL         time.Duration
	NumCounters int64
	MaxCost     int64
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:         30 * time.Second,
		NumCounters: 1e5,
		MaxCost:     1e4,
	}
}

// CachedResolver memoizes LoadRoles for a short TTL. Concurrent misses for
// the same subject share one load. ErrNotFound is never cached, so a newly
// created account is visible immediately; a disabled account can keep
// resolving as enabled for up to TTL unless Invalidate is called.
type CachedResolver struct {
	next  Resolver
	cache *ristretto.Cache[string, *Identity]
	group singleflight.Group
	ttl   time.Duration
}

func NewCachedResolver(next Resolver, cfg CacheConfig) (*CachedResolver, error) {
	def := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = def.NumCounters
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = def.MaxCost
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *Identity]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create identity cache: %w", err)
	}
	return &CachedResolver{next: next, cache: cache, ttl: cfg.TTL}, nil
}

func (c *CachedResolver) LoadRoles(ctx context.Context, subject string) (*Identity, error) {
	if id, ok := c.cache.Get(subject); ok {
		metrics.IncrCounter([]string{"vortex", "identity", "cache", "hit"}, 1)
		return clone(id), nil
	}
	metrics.IncrCounter([]string{"vortex", "identity", "cache", "miss"}, 1)

	v, err, _ := c.group.Do(subject, func() (any, error) {
		id, err := c.next.LoadRoles(ctx, subject)
		if err != nil {
			return nil, err
		}
		c.cache.SetWithTTL(subject, id, 1, c.ttl)
		return id, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return clone(v.(*Identity)), nil
}

// VerifyPassword passes through when the wrapped resolver can verify
// passwords. Results are never cached.
func (c *CachedResolver) VerifyPassword(ctx context.Context, subject, password string) error {
	pv, ok := c.next.(PasswordVerifier)
	if !ok {
		return ErrInvalidCredentials
	}
	return pv.VerifyPassword(ctx, subject, password)
}

var _ Invalidator = (*CachedResolver)(nil)

// Invalidate drops the cached entry for subject.
func (c *CachedResolver) Invalidate(subject string) {
	c.cache.Del(subject)
}

func (c *CachedResolver) Close() {
	c.cache.Close()
}

func clone(id *Identity) *Identity {
	out := *id
	out.Roles = append([]string(nil), id.Roles...)
	return &out
}
