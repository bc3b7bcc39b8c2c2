// Package backend implements the HTTP client for the retail platform API:
// lot search, order context, the customer directory, and sales-order
// submission with pending-confirmation status checks.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/warungtech/pos-register/internal/domain/customer"
	"github.com/warungtech/pos-register/internal/domain/lot"
	"github.com/warungtech/pos-register/internal/register"
)

// Compile-time check ensuring Client satisfies the register gateway.
var _ register.Gateway = (*Client)(nil)

// SearchFilter narrows a sellable-lot search.
type SearchFilter struct {
	Query             string   `json:"query,omitempty"`
	ParentCategoryIDs []string `json:"parent_category_ids,omitempty"`
	CategoryIDs       []string `json:"category_ids,omitempty"`
	SupplierIDs       []string `json:"supplier_ids,omitempty"`
	Limit             int      `json:"limit,omitempty"`
}

// APIError is a non-2xx platform response. The message, when present, is
// suitable for operator display.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform API: status %d", e.StatusCode)
	}
	return fmt.Sprintf("platform API: status %d: %s", e.StatusCode, e.Message)
}

// RemoteMessage returns the server-provided message for display.
func (e *APIError) RemoteMessage() string { return e.Message }

// Client talks to the retail platform API.
type Client struct {
	base   string
	http   *http.Client
	apiKey string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. to install an
// instrumented transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sends the given key on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: baseURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchSellableLots runs a lot search with the given filter.
func (c *Client) SearchSellableLots(ctx context.Context, f SearchFilter) ([]lot.Lot, error) {
	body, err := c.post(ctx, "/api/v1/lots/search", encodeSearchFilter(f))
	if err != nil {
		return nil, errors.Wrap(err, "search lots")
	}
	lots, err := decodeLotList(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode lots")
	}
	return lots, nil
}

// FetchOrderContext retrieves the context for the next sales order.
func (c *Client) FetchOrderContext(ctx context.Context) (*register.OrderContext, error) {
	body, err := c.get(ctx, "/api/v1/orders/context", nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch order context")
	}
	oc, err := decodeOrderContext(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode order context")
	}
	return oc, nil
}

// LookupCustomerByPhone finds the customer with exactly the given phone
// number. It returns (nil, nil) when none matches.
func (c *Client) LookupCustomerByPhone(ctx context.Context, phone string) (*customer.Customer, error) {
	body, err := c.get(ctx, "/api/v1/customers/by-phone", url.Values{"phone": {phone}})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "lookup customer")
	}
	cust, err := decodeCustomer(jx.DecodeBytes(body))
	if err != nil {
		return nil, errors.Wrap(err, "decode customer")
	}
	return cust, nil
}

// CreateCustomer creates or updates a customer record keyed by phone. The
// bool reports whether an existing record was updated.
func (c *Client) CreateCustomer(ctx context.Context, in customer.CreateInput) (*customer.Customer, bool, error) {
	body, err := c.post(ctx, "/api/v1/customers", encodeCreateCustomer(in))
	if err != nil {
		return nil, false, errors.Wrap(err, "create customer")
	}
	cust, updated, err := decodeCreateCustomerResponse(body)
	if err != nil {
		return nil, false, errors.Wrap(err, "decode customer")
	}
	return cust, updated, nil
}

// CreateSalesOrder submits a finalize request.
func (c *Client) CreateSalesOrder(ctx context.Context, req register.SalesOrderRequest) (*register.SalesOrderResult, error) {
	body, err := c.post(ctx, "/api/v1/sales-orders", encodeSalesOrder(req))
	if err != nil {
		return nil, errors.Wrap(err, "create sales order")
	}
	res, err := decodeSalesOrderResult(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode sales order result")
	}
	return res, nil
}

// PendingOrderStatus checks a pending order awaiting customer confirmation.
func (c *Client) PendingOrderStatus(ctx context.Context, pendingID string) (*register.PendingStatus, error) {
	body, err := c.get(ctx, "/api/v1/sales-orders/pending/"+url.PathEscape(pendingID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "pending order status")
	}
	st, err := decodePendingStatus(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode pending status")
	}
	return st, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    decodeErrorMessage(body),
		}
	}
	return body, nil
}
