package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/backend"
	"github.com/warungtech/pos-register/internal/domain/lot"
)

type countingSearcher struct {
	calls int
	lots  []lot.Lot
}

func (s *countingSearcher) SearchSellableLots(context.Context, backend.SearchFilter) ([]lot.Lot, error) {
	s.calls++
	return s.lots, nil
}

// An unreachable Redis must degrade to direct upstream calls, never fail the
// search.
func TestSearchDegradesWithoutRedis(t *testing.T) {
	upstream := &countingSearcher{lots: []lot.Lot{{
		ProductID: "p1",
		LotID:     "l1",
		SKU:       "SKU-1",
		QtyOnHand: decimal.RequireFromString("5"),
	}}}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	c := NewLotSearch(upstream, rdb, zap.NewNop())

	lots, err := c.SearchSellableLots(context.Background(), backend.SearchFilter{Query: "milk"})

	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "SKU-1", lots[0].SKU)
	assert.Equal(t, 1, upstream.calls)

	_, err = c.SearchSellableLots(context.Background(), backend.SearchFilter{Query: "milk"})
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}
