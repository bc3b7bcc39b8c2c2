package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warungtech/pos-register/internal/domain/customer"
	"github.com/warungtech/pos-register/internal/register"
)

func TestSearchSellableLots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/lots/search", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"query":"milk","limit":20}`, string(body))

		_, _ = w.Write([]byte(`{"lots":[{
			"product_id":"p1","lot_id":"l1","sku":"MLK-1","lot_code":"B42",
			"uom":"KG","qty_on_hand":"4.5","unit_price":18000,"unit_cost":15000,
			"discount":"0","expires_at":"2025-06-18T00:00:00Z",
			"reorder_qty":2,"min_margin":0.1,"missing_cost":false
		}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("secret"))
	lots, err := c.SearchSellableLots(context.Background(), SearchFilter{Query: "milk", Limit: 20})

	require.NoError(t, err)
	require.Len(t, lots, 1)
	l := lots[0]
	assert.Equal(t, "MLK-1", l.SKU)
	assert.Equal(t, "KG", l.UnitOfMeasure)
	assert.True(t, decimal.RequireFromString("4.5").Equal(l.QtyOnHand))
	assert.True(t, decimal.RequireFromString("18000").Equal(l.UnitPrice))
	require.NotNil(t, l.ExpiresAt)
	require.NotNil(t, l.ReorderQty)
	assert.True(t, decimal.RequireFromString("2").Equal(*l.ReorderQty))
	assert.False(t, l.MissingCost)
}

func TestLookupCustomerByPhone_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0811", r.URL.Query().Get("phone"))
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	cust, err := c.LookupCustomerByPhone(context.Background(), "0811")

	require.NoError(t, err)
	assert.Nil(t, cust)
}

func TestLookupCustomerByPhone_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1","full_name":"Budi","phone":"0811","email":"b@x.id","points":3500}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	cust, err := c.LookupCustomerByPhone(context.Background(), "0811")

	require.NoError(t, err)
	require.NotNil(t, cust)
	assert.Equal(t, "Budi", cust.FullName)
	assert.EqualValues(t, 3500, cust.Points)
}

func TestCreateCustomer_Updated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Sari", req["full_name"])

		_, _ = w.Write([]byte(`{"id":"c2","full_name":"Sari","phone":"0812","email":"s@x.id","points":0,"is_updated":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	cust, updated, err := c.CreateCustomer(context.Background(), customer.CreateInput{
		FullName: "Sari", Phone: "0812", Email: "s@x.id",
	})

	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "c2", cust.ID)
}

func TestCreateSalesOrder_Pending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"order_code":"SO-0001","customer_id":"c1","loyalty_points_to_redeem":3000,
			"lines":[{"product_id":"p1","lot_id":"l1","quantity":0.25}]
		}`, string(body))

		_, _ = w.Write([]byte(`{"status":"PENDING","pending":{"pending_id":"pend-1","customer_email":"b@x.id"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.CreateSalesOrder(context.Background(), register.SalesOrderRequest{
		OrderCode:    "SO-0001",
		CustomerID:   "c1",
		RedeemPoints: 3000,
		Lines: []register.SalesOrderLine{{
			ProductID: "p1", LotID: "l1", Quantity: decimal.RequireFromString("0.25"),
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, register.StatusPending, res.Status)
	require.NotNil(t, res.Pending)
	assert.Equal(t, "pend-1", res.Pending.PendingID)
	assert.Equal(t, "b@x.id", res.Pending.CustomerEmail)
}

func TestCreateSalesOrder_MissingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.CreateSalesOrder(context.Background(), register.SalesOrderRequest{OrderCode: "SO-1"})

	require.Error(t, err)
}

func TestPendingOrderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sales-orders/pending/pend-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"AWAITING","is_confirmed":false}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	st, err := c.PendingOrderStatus(context.Background(), "pend-1")

	require.NoError(t, err)
	assert.Equal(t, "AWAITING", st.Status)
	assert.False(t, st.Confirmed)
}

func TestAPIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"order code already used"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.FetchOrderContext(context.Background())

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "order code already used", apiErr.RemoteMessage())

	var re register.RemoteError
	assert.True(t, errors.As(err, &re))
}
