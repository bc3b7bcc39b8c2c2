package register

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/domain/alert"
	"github.com/warungtech/pos-register/internal/domain/basket"
)

// StatusConfirmed is the journal status for a pending order the customer
// confirmed.
const StatusConfirmed = "CONFIRMED"

// Finalize submits the basket as a sales order. The guards run locally,
// before any network call: a non-idle coordinator, an empty basket, or a
// missing order context all reject the attempt.
//
// A FINAL response completes the sale: basket, customer, redemption, and
// manual alerts are cleared and an external refresh is flagged. A PENDING
// response stores the pending ticket, keeps the basket, and starts the
// confirmation poller. A failure returns the session to idle with state
// unchanged, safe to retry.
func (s *Session) Finalize(ctx context.Context) (*SalesOrderResult, error) {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	if s.state == StatePending || s.pending != nil {
		s.mu.Unlock()
		return nil, ErrPendingInProgress
	}
	if s.basket.Len() == 0 {
		s.alerts.Raise(alert.SeverityError, "cannot finalize an empty basket")
		s.mu.Unlock()
		return nil, ErrEmptyBasket
	}
	if s.orderCtx == nil {
		s.alerts.Raise(alert.SeverityError, "order context not loaded yet, try again")
		s.mu.Unlock()
		return nil, ErrNoOrderContext
	}

	s.state = StateSubmitting
	req := s.buildRequestLocked()
	sale := s.buildSaleLocked(req)
	s.mu.Unlock()

	res, err := s.gw.CreateSalesOrder(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateIdle
		s.alerts.Raise(alert.SeverityError, remoteMessage(err, "order submission failed"))
		return nil, errors.Wrap(err, "create sales order")
	}

	if res.Status == StatusPending {
		if res.Pending == nil {
			s.state = StateIdle
			s.alerts.Raise(alert.SeverityError, "order submission failed")
			return nil, errors.New("pending response without pending ticket")
		}
		s.pending = res.Pending
		s.state = StatePending
		msg := "order submitted, awaiting customer confirmation"
		if res.Pending.CustomerEmail != "" {
			msg += " (" + res.Pending.CustomerEmail + ")"
		}
		s.alerts.Raise(alert.SeverityInfo, msg)
		s.events.SalePending(req.OrderCode, res.Pending.PendingID)
		s.startPollerLocked(sale)
		return res, nil
	}

	sale.Status = StatusFinal
	s.completeSaleLocked(ctx, sale)
	s.state = StateIdle
	return res, nil
}

// CancelPending abandons the wait for customer confirmation. The pending
// ticket is destroyed and the poller stopped; basket lines are retained so
// the operator can finalize again.
func (s *Session) CancelPending() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return ErrNoPendingOrder
	}
	s.stopPollerLocked()
	s.state = StateIdle
	s.alerts.Raise(alert.SeverityWarning, "stopped waiting for customer confirmation, the order was not completed")
	return nil
}

// buildRequestLocked assembles the finalize payload from the current state.
func (s *Session) buildRequestLocked() SalesOrderRequest {
	lines := s.basket.Lines()
	req := SalesOrderRequest{
		OrderCode:    s.orderCtx.OrderCode,
		RedeemPoints: basket.ComputeTotals(lines, s.cust, s.requested).AppliedLoyalty,
		Lines:        make([]SalesOrderLine, len(lines)),
	}
	if s.cust != nil {
		req.CustomerID = s.cust.ID
	}
	for i, ln := range lines {
		req.Lines[i] = SalesOrderLine{
			ProductID: ln.Lot.ProductID,
			LotID:     ln.Lot.LotID,
			Quantity:  ln.Quantity,
		}
	}
	return req
}

// buildSaleLocked snapshots the priced sale at submission time. A pending
// order confirmed later is journaled with this snapshot, not with whatever
// the basket holds by then.
func (s *Session) buildSaleLocked(req SalesOrderRequest) Sale {
	lines := s.basket.Lines()
	totals := basket.ComputeTotals(lines, s.cust, s.requested)

	sale := Sale{
		ID:             uuid.New().String(),
		OrderCode:      req.OrderCode,
		CustomerID:     req.CustomerID,
		Lines:          make([]SaleLine, len(lines)),
		Subtotal:       totals.Subtotal,
		DiscountTotal:  totals.DiscountTotal,
		Total:          totals.FinalTotal,
		RedeemedPoints: totals.AppliedLoyalty,
		PointsEarned:   totals.PointsEarned,
		SoldAt:         s.clock(),
	}
	for i, ln := range lines {
		sale.Lines[i] = SaleLine{
			ProductID: ln.Lot.ProductID,
			LotID:     ln.Lot.LotID,
			SKU:       ln.Lot.SKU,
			Quantity:  ln.Quantity,
			UnitPrice: ln.Lot.UnitPrice,
		}
	}
	return sale
}

// completeSaleLocked applies the terminal-sale reset: basket, customer,
// redemption, and manual alerts cleared, pending destroyed, external refresh
// flagged. The sale is journaled and published; neither failure fails the
// sale.
func (s *Session) completeSaleLocked(ctx context.Context, sale Sale) {
	s.basket.Clear()
	s.cust = nil
	s.requested = 0
	s.pending = nil
	s.alerts.ClearManual()
	s.alerts.Recompute(nil)
	s.needsRefresh = true

	if s.journal != nil {
		if err := s.journal.RecordSale(ctx, sale); err != nil {
			s.lg.Error("journal append failed",
				zap.String("order_code", sale.OrderCode),
				zap.Error(err))
		}
	}
	s.events.SaleFinalized(sale)
	if s.sales != nil {
		s.sales.Add(ctx, 1, metric.WithAttributes(attribute.String("status", sale.Status)))
	}
}

// startPollerLocked launches the confirmation poller for the current pending
// ticket. Any prior poller must already be stopped; the ticket guard in
// Finalize guarantees that.
func (s *Session) startPollerLocked(sale Sale) {
	ctx, cancel := context.WithCancel(context.Background())
	s.pollCancel = cancel
	done := make(chan struct{})
	s.pollDone = done
	go s.poll(ctx, s.pending.PendingID, sale, done)
}

// stopPollerLocked destroys the pending ticket and synchronously cancels the
// poller so no further ticks run.
func (s *Session) stopPollerLocked() {
	s.releasePollerLocked()
	s.pending = nil
}

// releasePollerLocked cancels and forgets the poll context. Called by the
// poller itself on terminal transitions and by external teardown.
func (s *Session) releasePollerLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}

// poll watches a pending order until it resolves or is torn down. It issues
// an immediate status check, then one per tick.
func (s *Session) poll(ctx context.Context, pendingID string, sale Sale, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if s.checkPending(ctx, pendingID, sale) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// checkPending performs one status check and reports whether polling should
// stop. Transport errors are logged and swallowed; the next tick is the
// retry.
func (s *Session) checkPending(ctx context.Context, pendingID string, sale Sale) bool {
	st, err := s.gw.PendingOrderStatus(ctx, pendingID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return true
		}
		s.lg.Warn("pending order status check failed",
			zap.String("pending_id", pendingID),
			zap.Error(err))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Torn down or superseded while the check was in flight.
	if s.pending == nil || s.pending.PendingID != pendingID {
		return true
	}

	switch {
	case st.Confirmed:
		sale.Status = StatusConfirmed
		s.completeSaleLocked(ctx, sale)
		s.state = StateIdle
		s.releasePollerLocked()
		s.alerts.Raise(alert.SeverityInfo, "customer confirmed the order, sale completed")
		s.events.SaleResolved(sale.OrderCode, pendingID, StatusConfirmed)
		return true

	case st.Status == PendingExpired:
		s.pending = nil
		s.state = StateIdle
		s.releasePollerLocked()
		s.alerts.Raise(alert.SeverityWarning, "customer confirmation expired, finalize the order again")
		s.events.SaleResolved(sale.OrderCode, pendingID, PendingExpired)
		return true

	case st.Status == PendingCancelled:
		s.pending = nil
		s.state = StateIdle
		s.releasePollerLocked()
		s.alerts.Raise(alert.SeverityWarning, "customer cancelled the order")
		s.events.SaleResolved(sale.OrderCode, pendingID, PendingCancelled)
		return true

	default:
		// Still awaiting confirmation.
		return false
	}
}
