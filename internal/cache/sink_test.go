package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/register"
)

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls.Add(1)
	return nil
}

type recordingSink struct {
	mu        sync.Mutex
	finalized []string
	pending   []string
	resolved  []string
}

func (r *recordingSink) SaleFinalized(s register.Sale) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, s.OrderCode)
}

func (r *recordingSink) SalePending(orderCode, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, orderCode)
}

func (r *recordingSink) SaleResolved(orderCode, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, orderCode)
}

func (r *recordingSink) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.finalized), len(r.pending), len(r.resolved)
}

func TestSaleSinkInvalidatesOnFinalizedSale(t *testing.T) {
	inv := &countingInvalidator{}
	next := &recordingSink{}
	s := NewSaleSink(next, inv, zap.NewNop())

	s.SalePending("SO-1", "pend-1")
	s.SaleResolved("SO-1", "pend-1", register.PendingExpired)
	assert.EqualValues(t, 0, inv.calls.Load())

	s.SaleFinalized(register.Sale{OrderCode: "SO-1"})

	require.Eventually(t, func() bool {
		return inv.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	fin, pend, res := next.counts()
	assert.Equal(t, 1, fin)
	assert.Equal(t, 1, pend)
	assert.Equal(t, 1, res)
}
