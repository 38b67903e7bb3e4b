// Package portal implements the remote service contracts of the ordering
// portal: the authoritative cart store and the shortage risk service. Wire
// shapes follow the portal REST API; JSON is encoded and decoded with
// go-faster/jx.
package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/cartsync/internal/domain/cart"
)

// APIError is a non-2xx portal response, carrying the decoded detail
// message. The engine treats it as a remote failure: rollback, then
// surface as retryable.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal: %s (status %d)", e.Detail, e.StatusCode)
}

// Config configures a portal cart client.
type Config struct {
	// BaseURL is the portal API root, e.g. https://portal.example.com/api.
	BaseURL string
	// Token is the bearer token for the customer session.
	Token string
	// Client is the HTTP client to use; http.DefaultClient when nil.
	Client *http.Client
}

// Client talks to the portal's customer cart and order endpoints. It
// implements the engine's CartService contract.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient creates a portal cart client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base URL")
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, token: cfg.Token, http: httpClient}, nil
}

// AddToCart creates a line for the product, or merges quantity into an
// existing line server-side. The portal acknowledges with the created or
// merged item.
func (c *Client) AddToCart(ctx context.Context, productCode string, quantity int, subs []cart.Substitute) (*cart.ServerResponse, error) {
	body := encodeAddItem(productCode, quantity, subs)
	data, err := c.do(ctx, http.MethodPost, "/customer/cart/items", body)
	if err != nil {
		return nil, err
	}
	line, err := decodeLineBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cart item")
	}
	return &cart.ServerResponse{Line: &line}, nil
}

// RemoveFromCart deletes a line. The portal answers 204 with no body, so
// the acknowledgment is ambiguous by design and the optimistic state is
// kept on the client.
func (c *Client) RemoveFromCart(ctx context.Context, id cart.LineID) (*cart.ServerResponse, error) {
	if _, err := c.do(ctx, http.MethodDelete, "/customer/cart/items/"+url.PathEscape(string(id)), nil); err != nil {
		return nil, err
	}
	return &cart.ServerResponse{}, nil
}

// UpdateQuantity sets a line's quantity and returns the updated item.
func (c *Client) UpdateQuantity(ctx context.Context, id cart.LineID, quantity int) (*cart.ServerResponse, error) {
	body := encodeQuantity(quantity)
	data, err := c.do(ctx, http.MethodPatch, "/customer/cart/items/"+url.PathEscape(string(id))+"/quantity", body)
	if err != nil {
		return nil, err
	}
	line, err := decodeLineBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cart item")
	}
	return &cart.ServerResponse{Line: &line}, nil
}

// ClearCart removes every line from the remote cart.
func (c *Client) ClearCart(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/customer/cart/", nil)
	return err
}

// FetchCart returns the server's complete view of the cart.
func (c *Client) FetchCart(ctx context.Context) ([]cart.Line, error) {
	data, err := c.do(ctx, http.MethodGet, "/customer/cart/", nil)
	if err != nil {
		return nil, err
	}
	lines, err := decodeCart(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return lines, nil
}

// PlaceOrder places an order from the remote cart and returns the portal
// assigned order id.
func (c *Client) PlaceOrder(ctx context.Context, req cart.OrderRequest) (string, error) {
	body := encodeOrder(req)
	data, err := c.do(ctx, http.MethodPost, "/customer/orders/", body)
	if err != nil {
		return "", err
	}
	orderID, err := decodeOrderID(data)
	if err != nil {
		return "", errors.Wrap(err, "decode order")
	}
	return orderID, nil
}

// do issues one portal request and returns the response body. Non-2xx
// responses are mapped to *APIError with the decoded detail message.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Detail:     decodeErrorDetail(data),
		}
	}
	return data, nil
}
