// Package property implements the listings search adapter backed by the
// Tokko Broker API, with a local dataset when no API key is configured.
package property

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/realty-agent/internal/apperr"
	"github.com/capitalize-ai/realty-agent/internal/model"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
	"github.com/capitalize-ai/realty-agent/pkg/metrics"
	"github.com/capitalize-ai/realty-agent/pkg/tracing"
)

const (
	// DefaultBaseURL is the public Tokko Broker API root.
	DefaultBaseURL = "https://www.tokkobroker.com/api/v1"

	defaultTimeout   = 15 * time.Second
	unboundedPrice   = 999999999
	resultLimit      = 10
	maxErrorBodySize = 4096

	operationCodeSale = 1
	operationCodeRent = 2

	untitled         = "Propiedad sin título"
	unknownLocation  = "Ubicación desconocida"
	placeholderImage = "https://via.placeholder.com/400x300?text=No+Image"
	defaultCurrency  = "USD"
)

var propertyTypeCodes = []int{1, 2, 3}

// Client searches listings on Tokko Broker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each provider request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a Tokko search client. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL string, log *logger.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		log:        log.Named("tokko"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns listings matching filter. A blank apiKey serves results from
// the fallback dataset without network I/O. Provider failures are returned
// as apperr.ProviderRejected or apperr.Transport.
func (c *Client) Search(ctx context.Context, filter model.PropertySearchFilter, apiKey string) ([]model.Property, error) {
	if strings.TrimSpace(apiKey) == "" {
		c.log.Debug("no listings API key, serving fallback dataset",
			zap.String("kind", string(apperr.ConfigurationGap)),
			zap.String("location", filter.Location),
		)
		return searchFallback(filter), nil
	}

	ctx, span := tracing.Tracer("property").Start(ctx, "property.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("filter.location", filter.Location),
		attribute.Float64("filter.max_price", filter.MaxPrice),
		attribute.String("filter.operation", string(filter.OperationKind)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	props, err := c.search(ctx, filter, apiKey)
	outcome := "success"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("listings search failed", zap.Error(err))
	} else {
		span.SetAttributes(attribute.Int("result.count", len(props)))
	}
	metrics.RecordExternalRequest("tokko", outcome, time.Since(start).Seconds())

	return props, err
}

func (c *Client) search(ctx context.Context, filter model.PropertySearchFilter, apiKey string) ([]model.Property, error) {
	endpoint, err := c.searchURL(filter, apiKey)
	if err != nil {
		return nil, apperr.Internal("tokko.search", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.Internal("tokko.search", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.TransportFailure("tokko.search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, apperr.Rejected("tokko.search", resp.StatusCode, string(body))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperr.TransportFailure("tokko.search", fmt.Errorf("decode response: %w", err))
	}

	kind := requestedKind(filter.OperationKind)
	props := make([]model.Property, 0, len(payload.Objects))
	for _, rec := range payload.Objects {
		props = append(props, rec.toProperty(kind))
	}
	return props, nil
}

type searchQuery struct {
	CurrentLocalizationID int           `json:"current_localization_id"`
	PriceFrom             float64       `json:"price_from"`
	PriceTo               float64       `json:"price_to"`
	OperationTypes        []int         `json:"operation_types"`
	PropertyTypes         []int         `json:"property_types"`
	Filters               []queryFilter `json:"filters"`
	WithCustomTags        []string      `json:"with_custom_tags"`
}

type queryFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func buildQuery(filter model.PropertySearchFilter) searchQuery {
	q := searchQuery{
		PriceTo:        unboundedPrice,
		OperationTypes: []int{operationCodeSale},
		PropertyTypes:  propertyTypeCodes,
		Filters:        []queryFilter{},
		WithCustomTags: []string{},
	}
	if filter.MaxPrice > 0 {
		q.PriceTo = filter.MaxPrice
	}
	if filter.OperationKind == model.OperationRent {
		q.OperationTypes = []int{operationCodeRent}
	}
	if filter.Location != "" {
		q.Filters = append(q.Filters, queryFilter{Field: "location", Value: filter.Location})
	}
	return q
}

func (c *Client) searchURL(filter model.PropertySearchFilter, apiKey string) (string, error) {
	data, err := json.Marshal(buildQuery(filter))
	if err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("key", apiKey)
	params.Set("lang", "es")
	params.Set("format", "json")
	params.Set("limit", fmt.Sprint(resultLimit))
	params.Set("offset", "0")
	params.Set("data", string(data))
	return c.baseURL + "/property/search?" + params.Encode(), nil
}

func requestedKind(k model.OperationKind) model.OperationKind {
	if k == model.OperationRent {
		return model.OperationRent
	}
	return model.OperationSale
}

type searchResponse struct {
	Objects []rawProperty `json:"objects"`
}

type rawProperty struct {
	ID               int64          `json:"id"`
	PublicationTitle string         `json:"publication_title"`
	Address          string         `json:"address"`
	Operations       []rawOperation `json:"operations"`
	Location         *struct {
		Name string `json:"name"`
	} `json:"location"`
	SuiteAmount    int `json:"suite_amount"`
	RoomAmount     int `json:"room_amount"`
	BathroomAmount int `json:"bathroom_amount"`
	Photos         []struct {
		Image string `json:"image"`
	} `json:"photos"`
	Producer *struct {
		WebURL string `json:"web_url"`
	} `json:"producer"`
}

type rawOperation struct {
	Prices []struct {
		Price    float64 `json:"price"`
		Currency string  `json:"currency"`
	} `json:"prices"`
}

func (r rawProperty) toProperty(kind model.OperationKind) model.Property {
	p := model.Property{
		ID:        r.ID,
		Title:     firstNonEmpty(r.PublicationTitle, r.Address, untitled),
		Currency:  defaultCurrency,
		Location:  unknownLocation,
		Bedrooms:  r.SuiteAmount,
		Bathrooms: r.BathroomAmount,
		ImageURL:  placeholderImage,
		Link:      fmt.Sprintf("https://www.tokkobroker.com/p/%d", r.ID),
		Kind:      kind,
	}
	if p.Bedrooms == 0 {
		p.Bedrooms = r.RoomAmount
	}
	if len(r.Operations) > 0 && len(r.Operations[0].Prices) > 0 {
		price := r.Operations[0].Prices[0]
		p.Price = price.Price
		if price.Currency != "" {
			p.Currency = price.Currency
		}
	}
	if r.Location != nil && r.Location.Name != "" {
		p.Location = r.Location.Name
	}
	if len(r.Photos) > 0 && r.Photos[0].Image != "" {
		p.ImageURL = r.Photos[0].Image
	}
	if r.Producer != nil && r.Producer.WebURL != "" {
		p.Link = r.Producer.WebURL
	}
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
