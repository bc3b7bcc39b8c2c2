// Package register implements the order-building core of the point of sale:
// a session owning the basket, the bound customer, the alert list, and the
// finalization state machine with its pending-confirmation poller.
package register

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/warungtech/pos-register/internal/domain/customer"
)

// Sales order statuses returned by the platform.
const (
	StatusFinal   = "FINAL"
	StatusPending = "PENDING"
)

// Pending order resolution statuses.
const (
	PendingExpired   = "EXPIRED"
	PendingCancelled = "CANCELLED"
)

// Sentinel errors for local finalize guards. They are rejected before any
// network call.
var (
	ErrEmptyBasket       = errors.New("basket is empty")
	ErrNoOrderContext    = errors.New("order context not loaded")
	ErrPendingInProgress = errors.New("an order is awaiting customer confirmation")
	ErrSubmitInProgress  = errors.New("finalize already in flight")
	ErrNoPendingOrder    = errors.New("no pending order")
)

// State is the finalization coordinator state.
type State string

const (
	StateIdle       State = "IDLE"
	StateSubmitting State = "SUBMITTING"
	StatePending    State = "PENDING"
)

// OrderContext is the platform-issued context for the next sales order.
type OrderContext struct {
	CashierID   string    `json:"cashier_id"`
	CashierName string    `json:"cashier_name"`
	OrderCode   string    `json:"order_code"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SalesOrderLine is one basket line in the finalize payload.
type SalesOrderLine struct {
	ProductID string          `json:"product_id"`
	LotID     string          `json:"lot_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// SalesOrderRequest is the finalize payload submitted to the platform.
type SalesOrderRequest struct {
	OrderCode    string
	CustomerID   string
	RedeemPoints int64
	Lines        []SalesOrderLine
}

// PendingTicket identifies an order awaiting out-of-band customer approval.
type PendingTicket struct {
	PendingID     string `json:"pending_id"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// SalesOrderResult is the platform's response to a finalize request.
type SalesOrderResult struct {
	Status  string         `json:"status"`
	Pending *PendingTicket `json:"pending,omitempty"`
}

// PendingStatus is one poll result for a pending order.
type PendingStatus struct {
	Status    string `json:"status"`
	Confirmed bool   `json:"is_confirmed"`
}

// Gateway is the subset of platform operations the session drives.
type Gateway interface {
	FetchOrderContext(ctx context.Context) (*OrderContext, error)
	// LookupCustomerByPhone returns (nil, nil) when no customer matches.
	LookupCustomerByPhone(ctx context.Context, phone string) (*customer.Customer, error)
	// CreateCustomer creates or updates a record keyed by phone. The bool
	// reports whether an existing record was updated.
	CreateCustomer(ctx context.Context, in customer.CreateInput) (*customer.Customer, bool, error)
	CreateSalesOrder(ctx context.Context, req SalesOrderRequest) (*SalesOrderResult, error)
	PendingOrderStatus(ctx context.Context, pendingID string) (*PendingStatus, error)
}

// SaleLine is a priced line snapshot recorded with a terminal sale.
type SaleLine struct {
	ProductID string          `json:"product_id"`
	LotID     string          `json:"lot_id"`
	SKU       string          `json:"sku"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Sale is a locally observed terminal sale: either a FINAL finalize response
// or a pending order confirmed by the customer.
type Sale struct {
	ID             string          `json:"id"`
	OrderCode      string          `json:"order_code"`
	CustomerID     string          `json:"customer_id,omitempty"`
	Lines          []SaleLine      `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	Total          decimal.Decimal `json:"total"`
	RedeemedPoints int64           `json:"redeemed_points"`
	PointsEarned   int64           `json:"points_earned"`
	Status         string          `json:"status"`
	SoldAt         time.Time       `json:"sold_at"`
}

// SaleRecorder appends terminal sales to an audit journal. Append failures
// must not fail the sale; the session logs and continues.
type SaleRecorder interface {
	RecordSale(ctx context.Context, s Sale) error
}

// EventSink receives sale lifecycle notifications. Implementations must not
// block the caller.
type EventSink interface {
	SaleFinalized(s Sale)
	SalePending(orderCode, pendingID string)
	SaleResolved(orderCode, pendingID, status string)
}

// NopSink is an EventSink that discards everything.
type NopSink struct{}

func (NopSink) SaleFinalized(Sale)                  {}
func (NopSink) SalePending(string, string)          {}
func (NopSink) SaleResolved(string, string, string) {}
