// Package cache adds a Redis read-through cache in front of lot search.
// Terminals on the same store hit the same search over and over while
// building an order; a short TTL keeps results fresh enough without a
// platform round trip per keystroke.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/backend"
	"github.com/warungtech/pos-register/internal/domain/lot"
)

const (
	// keyLotSearch is lots:{generation}:{filter digest} -> JSON lot list.
	keyLotSearch = "lots:%d:%s"
	// keyGeneration is a counter bumped on Invalidate so stale entries
	// simply expire instead of being enumerated and deleted.
	keyGeneration = "lots:generation"

	ttlLotSearch = 30 * time.Second
)

// LotSearcher is the upstream lot search.
type LotSearcher interface {
	SearchSellableLots(ctx context.Context, f backend.SearchFilter) ([]lot.Lot, error)
}

// LotSearch caches lot search results. Any Redis failure degrades to a
// direct upstream call.
type LotSearch struct {
	upstream LotSearcher
	rdb      *redis.Client
	lg       *zap.Logger
}

// NewLotSearch wraps upstream with a Redis cache.
func NewLotSearch(upstream LotSearcher, rdb *redis.Client, lg *zap.Logger) *LotSearch {
	return &LotSearch{upstream: upstream, rdb: rdb, lg: lg}
}

// SearchSellableLots serves from cache when possible, otherwise calls the
// upstream and stores the result.
func (c *LotSearch) SearchSellableLots(ctx context.Context, f backend.SearchFilter) ([]lot.Lot, error) {
	key, ok := c.key(ctx, f)
	if ok {
		if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
			var lots []lot.Lot
			if err := json.Unmarshal(raw, &lots); err == nil {
				return lots, nil
			}
			// Corrupt entry, fall through to the upstream.
		} else if err != redis.Nil {
			c.lg.Warn("lot cache read failed", zap.Error(err))
		}
	}

	lots, err := c.upstream.SearchSellableLots(ctx, f)
	if err != nil {
		return nil, err
	}

	if ok {
		if raw, err := json.Marshal(lots); err == nil {
			if err := c.rdb.Set(ctx, key, raw, ttlLotSearch).Err(); err != nil {
				c.lg.Warn("lot cache write failed", zap.Error(err))
			}
		}
	}
	return lots, nil
}

// Invalidate drops all cached searches by bumping the generation counter.
func (c *LotSearch) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, keyGeneration).Err()
}

// key derives the cache key for a filter. The bool reports whether caching
// is usable for this call; generation lookup failures disable it.
func (c *LotSearch) key(ctx context.Context, f backend.SearchFilter) (string, bool) {
	gen, err := c.rdb.Get(ctx, keyGeneration).Int64()
	if err != nil && err != redis.Nil {
		c.lg.Warn("lot cache generation read failed", zap.Error(err))
		return "", false
	}

	raw, err := json.Marshal(f)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf(keyLotSearch, gen, hex.EncodeToString(sum[:8])), true
}
