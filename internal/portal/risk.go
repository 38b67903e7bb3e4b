package portal

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/cartsync/internal/domain/cart"
)

// Portal-wide fixed location codes for risk prediction.
const (
	defaultPlant           = "P01"
	defaultStorageLocation = "WH01"
)

// RiskConfig configures a shortage risk service client.
type RiskConfig struct {
	// BaseURL is the risk service root, e.g. http://localhost:8001.
	BaseURL string
	// CustomerNumber identifies the customer in prediction requests.
	CustomerNumber string
	// Plant and StorageLocation default to the portal-wide fixed codes.
	Plant           string
	StorageLocation string
	// Client is the HTTP client to use; http.DefaultClient when nil.
	Client *http.Client
}

// RiskClient talks to the shortage risk prediction service. It implements
// the risk scheduler's Assessor contract.
type RiskClient struct {
	base            *url.URL
	customer        string
	plant           string
	storageLocation string
	http            *http.Client
}

// NewRiskClient creates a risk service client.
func NewRiskClient(cfg RiskConfig) (*RiskClient, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base URL")
	}
	c := &RiskClient{
		base:            base,
		customer:        cfg.CustomerNumber,
		plant:           cfg.Plant,
		storageLocation: cfg.StorageLocation,
		http:            cfg.Client,
	}
	if c.plant == "" {
		c.plant = defaultPlant
	}
	if c.storageLocation == "" {
		c.storageLocation = defaultStorageLocation
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	return c, nil
}

// AssessRisk predicts shortage probability for a batch of product/quantity
// pairs in a single call.
func (c *RiskClient) AssessRisk(ctx context.Context, reqs []cart.RiskRequest) ([]cart.RiskResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/predict/batch"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(string(c.encodeBatch(reqs))))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "predict batch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("risk service returned status %d", resp.StatusCode)
	}

	results, err := decodePredictions(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "decode predictions")
	}
	return results, nil
}

func (c *RiskClient) encodeBatch(reqs []cart.RiskRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for _, r := range reqs {
		e.ObjStart()
		e.FieldStart("product_code")
		e.Str(r.ProductCode)
		e.FieldStart("customer_number")
		e.Str(c.customer)
		e.FieldStart("plant")
		e.Str(c.plant)
		e.FieldStart("storage_location")
		e.Str(c.storageLocation)
		e.FieldStart("order_qty")
		e.Int(r.Quantity)
		e.FieldStart("order_created_date")
		e.Str(r.OrderDate.Format(wireDateFormat))
		e.FieldStart("requested_delivery_date")
		e.Str(r.DeliveryDate.Format(wireDateFormat))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}
