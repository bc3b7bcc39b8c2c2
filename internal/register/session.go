package register

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/domain/alert"
	"github.com/warungtech/pos-register/internal/domain/basket"
	"github.com/warungtech/pos-register/internal/domain/customer"
	"github.com/warungtech/pos-register/internal/domain/lot"
)

// DefaultPollInterval is the tick interval for pending-order status checks.
const DefaultPollInterval = 5 * time.Second

// RemoteError is implemented by transport errors that carry a server-provided
// message suitable for display.
type RemoteError interface {
	error
	RemoteMessage() string
}

// Session is the single owner of one terminal's order-building state: basket
// lines, bound customer, requested redemption, alerts, and the pending order.
// All mutations are serialized through its mutex; the confirmation poller
// reports transitions back through the same lock instead of touching shared
// state from its own goroutine.
type Session struct {
	gw      Gateway
	journal SaleRecorder
	events  EventSink
	lg      *zap.Logger
	sales   metric.Int64Counter

	clock        func() time.Time
	pollInterval time.Duration

	mu           sync.Mutex
	orderCtx     *OrderContext
	basket       *basket.Basket
	alerts       *alert.Engine
	cust         *customer.Customer
	requested    int64
	state        State
	pending      *PendingTicket
	pollCancel   context.CancelFunc
	pollDone     chan struct{}
	needsRefresh bool
}

// Option configures a Session.
type Option func(*Session)

// WithJournal records terminal sales to the given audit journal.
func WithJournal(j SaleRecorder) Option {
	return func(s *Session) { s.journal = j }
}

// WithEvents publishes sale lifecycle events to the given sink.
func WithEvents(e EventSink) Option {
	return func(s *Session) { s.events = e }
}

// WithLogger sets the session logger.
func WithLogger(lg *zap.Logger) Option {
	return func(s *Session) { s.lg = lg }
}

// WithSalesCounter increments the given counter once per terminal sale.
func WithSalesCounter(c metric.Int64Counter) Option {
	return func(s *Session) { s.sales = c }
}

// WithPollInterval overrides the pending-order poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithClock overrides the session clock, which also drives the alert
// engine's expiry checks. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.clock = now }
}

// NewSession creates an idle session backed by the given platform gateway.
func NewSession(gw Gateway, opts ...Option) *Session {
	s := &Session{
		gw:           gw,
		events:       NopSink{},
		lg:           zap.NewNop(),
		clock:        time.Now,
		pollInterval: DefaultPollInterval,
		basket:       basket.New(),
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	// The engine is built after the options so WithClock covers it too.
	s.alerts = alert.NewEngineWithClock(s.clock)
	return s
}

// Snapshot is a consistent read of the session state for the service boundary.
type Snapshot struct {
	State           State              `json:"state"`
	OrderContext    *OrderContext      `json:"order_context,omitempty"`
	Lines           []basket.Line      `json:"lines"`
	Totals          basket.Totals      `json:"totals"`
	Customer        *customer.Customer `json:"customer,omitempty"`
	RequestedRedeem int64              `json:"requested_redeem"`
	Pending         *PendingTicket     `json:"pending,omitempty"`
	Alerts          []alert.Alert      `json:"alerts"`
	NeedsRefresh    bool               `json:"needs_refresh"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.basket.Lines()
	return Snapshot{
		State:           s.state,
		OrderContext:    s.orderCtx,
		Lines:           lines,
		Totals:          basket.ComputeTotals(lines, s.cust, s.requested),
		Customer:        s.cust,
		RequestedRedeem: s.requested,
		Pending:         s.pending,
		Alerts:          s.alerts.List(),
		NeedsRefresh:    s.needsRefresh,
	}
}

// Refresh reloads the order context from the platform. It is called at
// session start and after every terminal sale.
func (s *Session) Refresh(ctx context.Context) error {
	oc, err := s.gw.FetchOrderContext(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch order context")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderCtx = oc
	s.needsRefresh = false
	return nil
}

// AddLot adds the lot to the basket or merges it into the existing line.
// An add that is fully clamped away raises an informational alert instead of
// mutating the basket.
func (s *Session) AddLot(l lot.Lot) basket.AddResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.basket.Add(l)
	if res.AtCapacity {
		s.alerts.Raise(alert.SeverityInfo,
			fmt.Sprintf("only %s %s of %s available", l.QtyOnHand, l.UnitOfMeasure, l.SKU))
	}
	s.afterBasketChangeLocked()
	return res
}

// SetQuantity stores a manually entered quantity, clamping to the valid
// range. A clamp to the on-hand quantity raises a warning alert.
func (s *Session) SetQuantity(lineID string, raw decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.basket.SetQuantity(lineID, raw)
	if err != nil {
		return err
	}
	if res.Clamped {
		s.alerts.Raise(alert.SeverityWarning,
			fmt.Sprintf("only %s %s of %s available, quantity reduced",
				res.Line.Lot.QtyOnHand, res.Line.Lot.UnitOfMeasure, res.Line.Lot.SKU))
	}
	s.afterBasketChangeLocked()
	return nil
}

// RemoveLine deletes a basket line.
func (s *Session) RemoveLine(lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.basket.Remove(lineID); err != nil {
		return err
	}
	s.afterBasketChangeLocked()
	return nil
}

// RequestRedeem sets the requested points redemption. The stored value is
// immediately clamped to the current eligibility ceiling.
func (s *Session) RequestRedeem(points int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requested = basket.ClampRedeem(points, s.basket.Lines(), s.cust)
	return s.requested
}

// LookupCustomer binds the customer matching the phone number exactly. An
// empty result clears the current binding and raises an informational alert;
// a transport failure leaves the binding untouched.
func (s *Session) LookupCustomer(ctx context.Context, phone string) (*customer.Customer, error) {
	c, err := s.gw.LookupCustomerByPhone(ctx, phone)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.alerts.Raise(alert.SeverityError, remoteMessage(err, "customer lookup failed"))
		return nil, errors.Wrap(err, "lookup customer")
	}
	if c == nil {
		s.cust = nil
		s.requested = 0
		s.alerts.Raise(alert.SeverityInfo, "no customer found for "+phone)
		return nil, nil
	}
	s.cust = c
	s.requested = 0
	return c, nil
}

// CreateCustomer creates or updates a customer record and binds the result.
// Validation failures and transport failures raise an error alert and leave
// the current binding untouched.
func (s *Session) CreateCustomer(ctx context.Context, in customer.CreateInput) (*customer.Customer, error) {
	if err := in.Validate(); err != nil {
		s.mu.Lock()
		s.alerts.Raise(alert.SeverityError, err.Error())
		s.mu.Unlock()
		return nil, err
	}

	c, updated, err := s.gw.CreateCustomer(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.alerts.Raise(alert.SeverityError, remoteMessage(err, "saving customer failed"))
		return nil, errors.Wrap(err, "create customer")
	}
	s.cust = c
	s.requested = 0
	if updated {
		s.alerts.Raise(alert.SeverityInfo, "existing customer updated: "+c.FullName)
	} else {
		s.alerts.Raise(alert.SeverityInfo, "customer created: "+c.FullName)
	}
	return c, nil
}

// ClearCustomer removes the customer binding and resets the requested
// redemption. Basket lines are untouched.
func (s *Session) ClearCustomer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cust = nil
	s.requested = 0
}

// DismissAlert removes a manual alert by id.
func (s *Session) DismissAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts.Dismiss(id)
}

// Totals computes the current totals summary.
func (s *Session) Totals() basket.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return basket.ComputeTotals(s.basket.Lines(), s.cust, s.requested)
}

// Close tears down the session, stopping any running poller and waiting for
// it to exit.
func (s *Session) Close() {
	s.mu.Lock()
	done := s.pollDone
	s.stopPollerLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// afterBasketChangeLocked restores the derived-state invariants after any
// basket mutation: the requested redemption is re-clamped to the new
// eligibility ceiling and the derived alerts are recomputed.
func (s *Session) afterBasketChangeLocked() {
	lines := s.basket.Lines()
	s.requested = basket.ClampRedeem(s.requested, lines, s.cust)
	s.alerts.Recompute(lines)
}

// remoteMessage extracts a server-provided message from a transport error,
// falling back to the given text.
func remoteMessage(err error, fallback string) string {
	var re RemoteError
	if errors.As(err, &re) {
		if msg := re.RemoteMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}
