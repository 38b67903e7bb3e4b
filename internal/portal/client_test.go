package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cartsync/internal/domain/cart"
)

func mustDate(t *testing.T, v string) time.Time {
	t.Helper()
	d, err := time.Parse(wireDateFormat, v)
	require.NoError(t, err)
	return d
}

// capture records the last request seen by a test server.
type capture struct {
	method string
	path   string
	auth   string
	body   []byte
}

func newTestClient(t *testing.T, status int, respBody string, cap *capture) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cap != nil {
			cap.method = r.Method
			cap.path = r.URL.Path
			cap.auth = r.Header.Get("Authorization")
			cap.body, _ = io.ReadAll(r.Body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "sekret", Client: srv.Client()})
	require.NoError(t, err)
	return c
}

func TestAddToCart(t *testing.T) {
	var cap capture
	c := newTestClient(t, http.StatusCreated, `{
		"cart_item_id": 42,
		"product_code": "MILK-1L",
		"quantity": 2,
		"risk_score": null,
		"product": {"product_code": "MILK-1L", "product_name": "Milk 1L", "price": 1.49},
		"substitutes": [
			{"substitute_product_code": "SOY-1L", "priority": 2},
			{"substitute_product_code": "OAT-1L", "priority": 1}
		]
	}`, &cap)

	resp, err := c.AddToCart(context.Background(), "MILK-1L", 2, []cart.Substitute{
		{ProductCode: "OAT-1L", Priority: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, cap.method)
	assert.Equal(t, "/customer/cart/items", cap.path)
	assert.Equal(t, "Bearer sekret", cap.auth)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(cap.body, &sent))
	assert.Equal(t, "MILK-1L", sent["product_code"])
	assert.Equal(t, float64(2), sent["quantity"])
	subs, ok := sent["substitutes"].([]any)
	require.True(t, ok)
	require.Len(t, subs, 1)
	assert.Equal(t, map[string]any{"substitute_product_code": "OAT-1L", "priority": float64(1)}, subs[0])

	require.NotNil(t, resp.Line)
	line := resp.Line
	assert.Equal(t, cart.LineID("42"), line.ID)
	assert.Equal(t, "MILK-1L", line.ProductCode)
	assert.Equal(t, 2, line.Quantity)
	assert.Nil(t, line.RiskScore)
	require.NotNil(t, line.Product)
	assert.Equal(t, "Milk 1L", line.Product.Name)
	assert.True(t, line.Product.Price.Equal(decimal.RequireFromString("1.49")))
	// Substitutes come back sorted by priority regardless of wire order.
	require.Len(t, line.Substitutes, 2)
	assert.Equal(t, "OAT-1L", line.Substitutes[0].ProductCode)
	assert.Equal(t, "SOY-1L", line.Substitutes[1].ProductCode)
}

func TestRemoveFromCart(t *testing.T) {
	var cap capture
	c := newTestClient(t, http.StatusNoContent, "", &cap)

	resp, err := c.RemoveFromCart(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, cap.method)
	assert.Equal(t, "/customer/cart/items/42", cap.path)
	// 204 carries no acknowledgment body.
	assert.Nil(t, resp.Line)
	assert.False(t, resp.Full)
}

func TestUpdateQuantity(t *testing.T) {
	var cap capture
	c := newTestClient(t, http.StatusOK, `{"cart_item_id": 42, "product_code": "MILK-1L", "quantity": 5}`, &cap)

	resp, err := c.UpdateQuantity(context.Background(), "42", 5)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, cap.method)
	assert.Equal(t, "/customer/cart/items/42/quantity", cap.path)
	assert.JSONEq(t, `{"quantity": 5}`, string(cap.body))
	require.NotNil(t, resp.Line)
	assert.Equal(t, 5, resp.Line.Quantity)
}

func TestClearCart(t *testing.T) {
	var cap capture
	c := newTestClient(t, http.StatusNoContent, "", &cap)

	require.NoError(t, c.ClearCart(context.Background()))
	assert.Equal(t, http.MethodDelete, cap.method)
	assert.Equal(t, "/customer/cart/", cap.path)
}

func TestFetchCart(t *testing.T) {
	var cap capture
	c := newTestClient(t, http.StatusOK, `{
		"items": [
			{"cart_item_id": 1, "product_code": "MILK-1L", "quantity": 2, "risk_score": 0.35},
			{"cart_item_id": 2, "product_code": "EGGS-12", "quantity": 1}
		],
		"total_items": 2
	}`, &cap)

	lines, err := c.FetchCart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, cap.method)
	assert.Equal(t, "/customer/cart/", cap.path)
	require.Len(t, lines, 2)
	assert.Equal(t, cart.LineID("1"), lines[0].ID)
	require.NotNil(t, lines[0].RiskScore)
	assert.Equal(t, 0.35, *lines[0].RiskScore)
	assert.Nil(t, lines[1].RiskScore)
}

func TestPlaceOrder(t *testing.T) {
	var cap capture
	c := newTestClient(t, http.StatusCreated, `{"order_id": "ORD-1A2B3C4D", "status": "confirmed"}`, &cap)

	orderID, err := c.PlaceOrder(context.Background(), cart.OrderRequest{
		DeliveryDate: mustDate(t, "2026-03-15"),
		WindowStart:  "08:00",
		WindowEnd:    "12:00",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, cap.method)
	assert.Equal(t, "/customer/orders/", cap.path)
	assert.JSONEq(t, `{
		"delivery_date": "2026-03-15",
		"delivery_window_start": "08:00",
		"delivery_window_end": "12:00"
	}`, string(cap.body))
	assert.Equal(t, "ORD-1A2B3C4D", orderID)
}

func TestPlaceOrder_WindowOmittedWhenUnset(t *testing.T) {
	var cap capture
	c := newTestClient(t, http.StatusCreated, `{"order_id": "ORD-1A2B3C4D"}`, &cap)

	_, err := c.PlaceOrder(context.Background(), cart.OrderRequest{
		DeliveryDate: mustDate(t, "2026-03-15"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"delivery_date": "2026-03-15"}`, string(cap.body))
}

func TestPlaceOrder_MissingOrderID(t *testing.T) {
	c := newTestClient(t, http.StatusCreated, `{"status": "confirmed"}`, nil)

	_, err := c.PlaceOrder(context.Background(), cart.OrderRequest{
		DeliveryDate: mustDate(t, "2026-03-15"),
	})
	require.Error(t, err)
}

func TestDo_APIError(t *testing.T) {
	c := newTestClient(t, http.StatusNotFound, `{"detail": "Cart item not found"}`, nil)

	_, err := c.FetchCart(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Cart item not found", apiErr.Detail)
	assert.Contains(t, apiErr.Error(), "404")
}

func TestDo_APIErrorFallsBackToRawBody(t *testing.T) {
	c := newTestClient(t, http.StatusBadGateway, "upstream exploded", nil)

	_, err := c.FetchCart(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream exploded", apiErr.Detail)
}

func TestNewClient_BasePathPreserved(t *testing.T) {
	var cap capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cap.path = r.URL.Path
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/api/v1/", Client: srv.Client()})
	require.NoError(t, err)

	_, err = c.FetchCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/customer/cart/", cap.path)
}
