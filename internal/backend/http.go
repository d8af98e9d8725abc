package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/internal/model"
	"storefront/internal/transport"
)

// DefaultBaseURL is the API root used when none is configured.
const DefaultBaseURL = "http://127.0.0.1:8000/api"

// MaxResponseSize limits API response bodies to 8MB.
const MaxResponseSize = 8 << 20

// serviceName labels upstream errors.
const serviceName = "storefront API"

// Config holds HTTP client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// ChromeTLS presents a browser TLS fingerprint to the API. Only useful
	// when the API sits behind a CDN that fingerprints clients.
	ChromeTLS bool

	// HTTPClient overrides the transport entirely (tests).
	HTTPClient *http.Client
}

// HTTPClient implements Backend against the REST API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPClient creates a client for the API at cfg.BaseURL.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = transport.NewClient(transport.Options{
			Timeout:           timeout,
			ChromeFingerprint: cfg.ChromeTLS,
		})
	}

	return &HTTPClient{
		httpClient: client,
		baseURL:    strings.TrimSuffix(base, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

func (c *HTTPClient) ListProducts(ctx context.Context, page int) (*model.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	var out model.ProductPage
	path := "/products/?page=" + strconv.Itoa(page)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, "products", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetProduct(ctx context.Context, id model.ProductID) (*model.Product, error) {
	var out model.Product
	path := "/products/" + url.PathEscape(id.String()) + "/"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, "product", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ValidateCart(ctx context.Context, items []model.ItemRequest) (*model.ValidationResult, error) {
	if items == nil {
		items = []model.ItemRequest{}
	}
	var out model.ValidationResult
	body := model.ValidateCartRequest{Items: items}
	if err := c.do(ctx, http.MethodPost, "/orders/validate-cart/", body, nil, "cart", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CalculateTotals(ctx context.Context, req *model.TotalsRequest) (*model.OrderTotals, error) {
	var out model.OrderTotals
	if err := c.do(ctx, http.MethodPost, "/orders/calculate-total/", req, nil, "product", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req *model.OrderRequest, idempotencyKey string) (*model.Order, error) {
	var headers http.Header
	if idempotencyKey != "" {
		headers = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var out model.Order
	if err := c.do(ctx, http.MethodPost, "/orders/", req, headers, "order", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetOrder(ctx context.Context, orderNumber string) (*model.Order, error) {
	var out model.Order
	path := "/orders/" + url.PathEscape(orderNumber) + "/"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, "order", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// userAgent identifies the storefront to the API and any WAF in front of it.
const userAgent = "Storefront-BFF/1.0"

// do sends one JSON request and decodes the response into out.
// resource names the thing a 404 refers to.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, headers http.Header, resource string, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("reading response: %w", err))
	}
	if len(respBody) > MaxResponseSize {
		return model.NewUpstreamError(serviceName, fmt.Errorf("response exceeds %d bytes", MaxResponseSize))
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, respBody, resource)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

// errorResponse covers the shapes the API uses for errors:
// {"error": "..."} from function views and {"detail": "..."} from the framework.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (e errorResponse) message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Detail
}

// parseErrorResponse converts an API error status to an APIError.
func parseErrorResponse(statusCode int, body []byte, resource string) error {
	var apiErr errorResponse
	json.Unmarshal(body, &apiErr) // best effort; field-error maps leave it empty

	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError(resource)
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("storefront API rejected credentials")
	case http.StatusBadRequest:
		msg := apiErr.message()
		if msg == "" {
			msg = "request rejected"
		}
		return model.NewValidationError(resource, msg)
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	default:
		return model.NewUpstreamError(serviceName,
			fmt.Errorf("status %d: %s", statusCode, apiErr.message()))
	}
}

// Verify HTTPClient implements Backend at compile time.
var _ Backend = (*HTTPClient)(nil)
