package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/register"
)

// Invalidator drops cached lot searches.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// SaleSink decorates an event sink so every completed sale also invalidates
// the lot cache: a sale changes on-hand quantities, and serving the old
// figures for a full TTL would mislead the next terminal.
type SaleSink struct {
	next register.EventSink
	inv  Invalidator
	lg   *zap.Logger
}

// NewSaleSink wraps next with cache invalidation on finalized sales.
func NewSaleSink(next register.EventSink, inv Invalidator, lg *zap.Logger) *SaleSink {
	return &SaleSink{next: next, inv: inv, lg: lg}
}

// SaleFinalized invalidates the lot cache and forwards the event. The
// invalidation runs on its own goroutine; sinks are called under the session
// lock and must not block on Redis.
func (s *SaleSink) SaleFinalized(sale register.Sale) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.inv.Invalidate(ctx); err != nil {
			s.lg.Warn("lot cache invalidation failed",
				zap.String("order_code", sale.OrderCode),
				zap.Error(err))
		}
	}()
	s.next.SaleFinalized(sale)
}

// SalePending forwards the event; nothing has been sold yet.
func (s *SaleSink) SalePending(orderCode, pendingID string) {
	s.next.SalePending(orderCode, pendingID)
}

// SaleResolved forwards the event. A confirmed resolution is followed by a
// SaleFinalized for the same order, which carries the invalidation.
func (s *SaleSink) SaleResolved(orderCode, pendingID, status string) {
	s.next.SaleResolved(orderCode, pendingID, status)
}
