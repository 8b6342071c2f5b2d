package shipping

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"github.com/mmynk/sambatan/internal/models"
)

const defaultHTTPTimeout = 3 * time.Second

// HTTPCatalog quotes rates and resolves origins from an external rate service.
//
// Endpoints:
//
//	POST /v1/quotes/individual    {origin, destination}  -> {rates: [...]}
//	POST /v1/quotes/consolidated  {origin, destinations} -> {rate: {...}}
//	GET  /v1/products/{id}/origin                        -> location
type HTTPCatalog struct {
	client *resty.Client
}

var (
	_ RateCatalog    = (*HTTPCatalog)(nil)
	_ OriginResolver = (*HTTPCatalog)(nil)
)

// NewHTTPCatalog creates a catalog client for the service at baseURL.
func NewHTTPCatalog(baseURL string, timeout time.Duration) *HTTPCatalog {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPCatalog{client: client}
}

// Close releases the underlying HTTP client.
func (c *HTTPCatalog) Close() error {
	return c.client.Close()
}

type locationJSON struct {
	City       string `json:"city"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postal_code"`
}

func toLocationJSON(l models.Location) locationJSON {
	return locationJSON{City: l.City, Province: l.Province, PostalCode: l.PostalCode}
}

func (l locationJSON) model() models.Location {
	return models.Location{City: l.City, Province: l.Province, PostalCode: l.PostalCode}
}

type rateJSON struct {
	Provider      string          `json:"provider"`
	ServiceTier   string          `json:"service_tier"`
	Price         decimal.Decimal `json:"price"`
	EstimatedDays int             `json:"estimated_days"`
}

func (r rateJSON) model() models.ShippingRate {
	return models.ShippingRate{
		ID:            models.RateID(r.Provider, r.ServiceTier),
		Provider:      r.Provider,
		ServiceTier:   r.ServiceTier,
		Price:         r.Price,
		EstimatedDays: r.EstimatedDays,
	}
}

type individualRequest struct {
	Origin      locationJSON `json:"origin"`
	Destination locationJSON `json:"destination"`
}

type individualResponse struct {
	Rates []rateJSON `json:"rates"`
}

type consolidatedRequest struct {
	Origin       locationJSON   `json:"origin"`
	Destinations []locationJSON `json:"destinations"`
}

type consolidatedResponse struct {
	Rate *rateJSON `json:"rate"`
}

func (c *HTTPCatalog) QuoteIndividual(ctx context.Context, origin, destination models.Location) ([]models.ShippingRate, error) {
	var out individualResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(individualRequest{Origin: toLocationJSON(origin), Destination: toLocationJSON(destination)}).
		SetResult(&out).
		Post("/v1/quotes/individual")
	if err := checkResponse(res, err, ErrNoRate); err != nil {
		return nil, fmt.Errorf("quote individual: %w", err)
	}

	rates := make([]models.ShippingRate, len(out.Rates))
	for i, r := range out.Rates {
		rates[i] = r.model()
	}
	return rates, nil
}

func (c *HTTPCatalog) QuoteConsolidated(ctx context.Context, origin models.Location, destinations []models.Location) (models.ShippingRate, error) {
	req := consolidatedRequest{Origin: toLocationJSON(origin), Destinations: make([]locationJSON, len(destinations))}
	for i, d := range destinations {
		req.Destinations[i] = toLocationJSON(d)
	}

	var out consolidatedResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v1/quotes/consolidated")
	if err := checkResponse(res, err, ErrNoRate); err != nil {
		return models.ShippingRate{}, fmt.Errorf("quote consolidated: %w", err)
	}
	if out.Rate == nil {
		return models.ShippingRate{}, fmt.Errorf("quote consolidated: %w", ErrNoRate)
	}
	return out.Rate.model(), nil
}

func (c *HTTPCatalog) Origin(ctx context.Context, productID string) (models.Location, error) {
	var out locationJSON
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", productID).
		SetResult(&out).
		Get("/v1/products/{id}/origin")
	if err := checkResponse(res, err, ErrUnknownOrigin); err != nil {
		return models.Location{}, fmt.Errorf("resolve origin for %s: %w", productID, err)
	}
	return out.model(), nil
}

// checkResponse maps transport failures to ErrUnavailable and a 404 to notFound.
func checkResponse(res *resty.Response, err error, notFound error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	switch {
	case res.StatusCode() == http.StatusNotFound:
		return notFound
	case res.IsError():
		return fmt.Errorf("%w: status %d", ErrUnavailable, res.StatusCode())
	}
	return nil
}
