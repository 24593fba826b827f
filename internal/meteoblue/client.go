package meteoblue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/meteoagent/weather-tool-service/internal/observability"
)

// Default endpoint families. Overridable via Config for tests.
const (
	DefaultForecastBaseURL = "https://my.meteoblue.com/packages"
	DefaultImageBaseURL    = "https://my.meteoblue.com/visimage"
	DefaultSearchBaseURL   = "https://www.meteoblue.com/en/server/search/query3"
)

// ForecastRequest describes one forecast packages call. Packages must be
// non-empty. Zero-valued optional fields are omitted from the request so the
// upstream applies its own defaults.
type ForecastRequest struct {
	Lat      float64
	Lon      float64
	Packages []ForecastPackage

	Altitude      *int   // meters above sea level
	Timezone      string // e.g. "Europe/Zurich"
	Temperature   TemperatureUnit
	Windspeed     WindspeedUnit
	Precipitation PrecipitationUnit
	Format        OutputFormat // defaults to FormatJSON
}

// ForecastPayload holds a forecast response. JSON is set for FormatJSON
// responses, Text for FormatCSV; exactly one is populated.
type ForecastPayload struct {
	Format OutputFormat    `json:"format"`
	JSON   json.RawMessage `json:"json,omitempty"`
	Text   string          `json:"text,omitempty"`
}

// LocationMatch is one result from the location search endpoint.
type LocationMatch struct {
	ID       int     `json:"id,omitempty"`
	Name     string  `json:"name"`
	ISO2     string  `json:"iso2,omitempty"`
	Country  string  `json:"country,omitempty"`
	Admin1   string  `json:"admin1,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Asl      float64 `json:"asl,omitempty"`
	Timezone string  `json:"timezone,omitempty"`
}

// Client is the interface the rest of the service programs against.
type Client interface {
	Forecast(ctx context.Context, req ForecastRequest) (ForecastPayload, error)
	Image(ctx context.Context, kind ImageKind, lat, lon float64) ([]byte, error)
	SearchLocations(ctx context.Context, query string) ([]LocationMatch, error)
}

// Config holds HTTPClient construction parameters.
type Config struct {
	APIKey          string
	ForecastBaseURL string
	ImageBaseURL    string
	SearchBaseURL   string
	Timeout         time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
}

// HTTPClient talks to the meteoblue REST API with retries, exponential
// backoff, and a circuit breaker around the upstream.
type HTTPClient struct {
	apiKey          string
	forecastBaseURL string
	imageBaseURL    string
	searchBaseURL   string
	client          *http.Client
	retryAttempts   int
	retryBaseDelay  time.Duration
	retryMaxDelay   time.Duration
	breaker         *gobreaker.CircuitBreaker
}

// NewHTTPClient validates the configuration and returns a ready client.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.ForecastBaseURL == "" {
		cfg.ForecastBaseURL = DefaultForecastBaseURL
	}
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = DefaultImageBaseURL
	}
	if cfg.SearchBaseURL == "" {
		cfg.SearchBaseURL = DefaultSearchBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "meteoblue",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &HTTPClient{
		apiKey:          cfg.APIKey,
		forecastBaseURL: strings.TrimRight(cfg.ForecastBaseURL, "/"),
		imageBaseURL:    strings.TrimRight(cfg.ImageBaseURL, "/"),
		searchBaseURL:   cfg.SearchBaseURL,
		client:          &http.Client{Timeout: cfg.Timeout},
		retryAttempts:   cfg.RetryAttempts,
		retryBaseDelay:  cfg.RetryBaseDelay,
		retryMaxDelay:   cfg.RetryMaxDelay,
		breaker:         cb,
	}, nil
}

// Forecast fetches the requested forecast packages for a coordinate.
// Package identifiers are joined by underscores in the URL path in the
// caller-supplied order.
func (c *HTTPClient) Forecast(ctx context.Context, req ForecastRequest) (ForecastPayload, error) {
	if len(req.Packages) == 0 {
		return ForecastPayload{}, errors.New("forecast request needs at least one package")
	}
	format := req.Format
	if format == "" {
		format = FormatJSON
	}

	segments := make([]string, len(req.Packages))
	for i, p := range req.Packages {
		segments[i] = string(p)
	}
	endpoint := c.forecastBaseURL + "/" + strings.Join(segments, "_")

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("lat", formatCoord(req.Lat))
	params.Set("lon", formatCoord(req.Lon))
	params.Set("format", string(format))
	if req.Altitude != nil {
		params.Set("asl", strconv.Itoa(*req.Altitude))
	}
	if req.Timezone != "" {
		params.Set("tz", req.Timezone)
	}
	if req.Temperature != "" {
		params.Set("temperature", string(req.Temperature))
	}
	if req.Windspeed != "" {
		params.Set("windspeed", string(req.Windspeed))
	}
	if req.Precipitation != "" {
		params.Set("precipitationamount", string(req.Precipitation))
	}

	body, err := c.get(ctx, "forecast", endpoint, params)
	if err != nil {
		return ForecastPayload{}, err
	}

	if format == FormatCSV {
		return ForecastPayload{Format: FormatCSV, Text: string(body)}, nil
	}
	if !json.Valid(body) {
		return ForecastPayload{}, fmt.Errorf("parse forecast response: invalid JSON")
	}
	return ForecastPayload{Format: FormatJSON, JSON: json.RawMessage(body)}, nil
}

// Image fetches a rendered visimage product and returns the raw bytes.
func (c *HTTPClient) Image(ctx context.Context, kind ImageKind, lat, lon float64) ([]byte, error) {
	endpoint := c.imageBaseURL + "/" + string(kind)

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))

	return c.get(ctx, "image", endpoint, params)
}

// SearchLocations resolves a place name to candidate coordinates. An empty
// result list is not an error at this layer.
func (c *HTTPClient) SearchLocations(ctx context.Context, query string) ([]LocationMatch, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("query", query)

	body, err := c.get(ctx, "search", c.searchBaseURL, params)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Results []LocationMatch `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return parsed.Results, nil
}

// get performs one GET with retries. endpointLabel is the metrics label for
// the endpoint family.
func (c *HTTPClient) get(ctx context.Context, endpointLabel, endpoint string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.doOnce(ctx, endpointLabel, endpoint, params)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *HTTPClient) doOnce(ctx context.Context, endpointLabel, endpoint string, params url.Values) ([]byte, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint URL: %w", err)
		}
		u.RawQuery = params.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if corrID := correlationIDFromContext(ctx); corrID != "" {
			req.Header.Set("X-Correlation-ID", corrID)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return body, nil
	})

	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.UpstreamCallsTotal.WithLabelValues(endpointLabel, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpointLabel).Observe(duration)

	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// isRetryable reports whether a fresh attempt could succeed: rate limiting,
// upstream 5xx, and transport timeouts qualify. An open circuit fails fast.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "connection refused")
}

func (c *HTTPClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// formatCoord renders a coordinate with the shortest representation that
// round-trips, matching what the upstream expects (e.g. "47.56").
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func correlationIDFromContext(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
