package gateway

import (
	"context"

	"github.com/geocoder89/leadflow/internal/cache"
)

const credsCacheKey = "gateway-credentials"

// CredsSource reads gateway credentials from the settings store.
type CredsSource interface {
	GatewayCreds(ctx context.Context) (Creds, error)
}

// CachedCredsSource is the 60s in-process credential cache from §6,
// grounded on the teacher's internal/cache.Cache.
type CachedCredsSource struct {
	source CredsSource
	cache  *cache.Cache
}

func NewCachedCredsSource(source CredsSource, c *cache.Cache) *CachedCredsSource {
	return &CachedCredsSource{source: source, cache: c}
}

func (c *CachedCredsSource) GatewayCreds(ctx context.Context) (Creds, error) {
	if v, ok := c.cache.Get(credsCacheKey); ok {
		if creds, ok := v.(Creds); ok {
			return creds, nil
		}
	}

	creds, err := c.source.GatewayCreds(ctx)
	if err != nil {
		return Creds{}, err
	}

	c.cache.Set(credsCacheKey, creds)
	return creds, nil
}
