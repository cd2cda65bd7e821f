package layout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cinema-ticketing/internal/config"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// CachedProvider is a Redis read-through cache in front of another
// Provider.  Cache failures are logged and bypassed so that a Redis outage
// never blocks seat lookups.
type CachedProvider struct {
	next Provider
	rdb  redis.Cmdable
	cfg  config.CacheConfig
}

// NewCachedProvider wraps next.  When caching is disabled or rdb is nil,
// next is returned unchanged.
func NewCachedProvider(next Provider, rdb redis.Cmdable, cfg config.CacheConfig) Provider {
	if !cfg.Enabled || rdb == nil {
		return next
	}
	return &CachedProvider{next: next, rdb: rdb, cfg: cfg}
}

func (p *CachedProvider) key(showingID uint64) string {
	return fmt.Sprintf("%s:%d", p.cfg.Prefix, showingID)
}

func (p *CachedProvider) Layout(ctx context.Context, showingID uint64) (model.Layout, error) {
	key := p.key(showingID)
	bs, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var l model.Layout
		if jerr := json.Unmarshal(bs, &l); jerr == nil {
			return l, nil
		}
		log.Warn().Str("key", key).Msg("layout cache: dropping undecodable entry")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("layout cache: get failed")
	}

	l, err := p.next.Layout(ctx, showingID)
	if err != nil {
		return l, err
	}
	if bs, err := json.Marshal(l); err == nil {
		if err := p.rdb.Set(ctx, key, bs, p.cfg.TTL).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("layout cache: set failed")
		}
	}
	return l, nil
}

// Invalidate drops the cached layout of a showing.
func (p *CachedProvider) Invalidate(ctx context.Context, showingID uint64) error {
	return p.rdb.Del(ctx, p.key(showingID)).Err()
}
