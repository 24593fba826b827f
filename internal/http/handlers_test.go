package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meteoagent/weather-tool-service/internal/cache"
	"github.com/meteoagent/weather-tool-service/internal/forecast"
	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
	"github.com/meteoagent/weather-tool-service/internal/tools"
)

// testServer wires the full stack the way main does: a real meteoblue client
// pointed at a stubbed upstream, the caching service, toolset, and router.
type testServer struct {
	router   *mux.Router
	upstream *upstreamStub
}

type upstreamStub struct {
	mu           sync.Mutex
	forecastBody string
	forecastCode int
	searchBody   string
	requests     []*url.URL
}

func (u *upstreamStub) seen() []*url.URL {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*url.URL(nil), u.requests...)
}

func (u *upstreamStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests = append(u.requests, r.URL)
		forecastBody, forecastCode, searchBody := u.forecastBody, u.forecastCode, u.searchBody
		u.mu.Unlock()

		switch {
		case strings.HasPrefix(r.URL.Path, "/packages/"):
			if forecastCode != 0 && forecastCode != http.StatusOK {
				http.Error(w, "upstream down", forecastCode)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(forecastBody))
		case strings.HasPrefix(r.URL.Path, "/en/server/search"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(searchBody))
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestServer(t *testing.T, limiter *rate.Limiter) *testServer {
	t.Helper()

	stub := &upstreamStub{
		forecastBody: `{"data_day":{"temperature_max":[21.5]}}`,
		searchBody:   `{"results":[{"name":"Basel","country":"Switzerland","lat":47.56,"lon":7.57}]}`,
	}
	upstream := httptest.NewServer(stub.handler())
	t.Cleanup(upstream.Close)

	client, err := meteoblue.NewHTTPClient(meteoblue.Config{
		APIKey:          "test-key",
		ForecastBaseURL: upstream.URL + "/packages",
		ImageBaseURL:    upstream.URL + "/visimage",
		SearchBaseURL:   upstream.URL + "/en/server/search/query3",
		RetryAttempts:   1,
	})
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}

	logger := zap.NewNop()
	svc := forecast.NewService(client, cache.NewInMemoryCache(), logger)
	toolset := tools.NewToolset(svc, client, t.TempDir(), logger)
	handler := NewHandler(toolset, logger, nil, nil)

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")

	toolRouter := router.PathPrefix("/tools").Subrouter()
	toolRouter.Use(RateLimitMiddleware(limiter))
	toolRouter.Use(TimeoutMiddleware(10 * time.Second))
	toolRouter.HandleFunc("/forecast", handler.PostForecast).Methods("POST")
	toolRouter.HandleFunc("/climate-image", handler.PostClimateImage).Methods("POST")
	toolRouter.HandleFunc("/search-location", handler.PostSearchLocation).Methods("POST")

	return &testServer{router: router, upstream: stub}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// TestPostForecast_EndToEnd drives the Basel scenario through the router down
// to a stubbed upstream and back.
func TestPostForecast_EndToEnd(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/tools/forecast", `{"lat": 47.56, "lon": 7.57}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Status   string          `json:"status"`
		Forecast json.RawMessage `json:"forecast"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if envelope.Status != "success" {
		t.Fatalf("envelope status = %q, body = %s", envelope.Status, rec.Body.String())
	}
	if !strings.Contains(string(envelope.Forecast), "data_day") {
		t.Errorf("forecast = %s, want upstream body", envelope.Forecast)
	}

	if len(ts.upstream.seen()) != 1 {
		t.Fatalf("upstream requests = %d, want 1", len(ts.upstream.seen()))
	}
	u := ts.upstream.seen()[0]
	if u.Path != "/packages/basic-day" {
		t.Errorf("upstream path = %q, want /packages/basic-day", u.Path)
	}
	q := u.Query()
	for key, want := range map[string]string{
		"apikey": "test-key",
		"lat":    "47.56",
		"lon":    "7.57",
		"format": "json",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("upstream query %s = %q, want %q", key, got, want)
		}
	}
}

// TestPostForecast_CachedSecondCall verifies the second identical request is
// served from cache without touching the upstream.
func TestPostForecast_CachedSecondCall(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `{"lat": 47.56, "lon": 7.57, "packages": ["daily"]}`
	for i := 0; i < 2; i++ {
		if rec := ts.do("POST", "/tools/forecast", body); rec.Code != http.StatusOK {
			t.Fatalf("call %d status = %d", i, rec.Code)
		}
	}
	if len(ts.upstream.seen()) != 1 {
		t.Errorf("upstream requests = %d, want 1", len(ts.upstream.seen()))
	}
}

// TestPostForecast_ToolErrorIsStill200 verifies tool-level failures keep the
// 200 + error-envelope contract.
func TestPostForecast_ToolErrorIsStill200(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/tools/forecast", `{"lat": 1, "lon": 2, "packages": ["bogus"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var envelope struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if envelope.Status != "error" {
		t.Errorf("envelope status = %q, want error", envelope.Status)
	}
	if !strings.Contains(envelope.ErrorMessage, `"bogus"`) {
		t.Errorf("error_message = %q, want invalid token named", envelope.ErrorMessage)
	}
	if len(ts.upstream.seen()) != 0 {
		t.Errorf("upstream requests = %d, want 0", len(ts.upstream.seen()))
	}
}

func TestPostForecast_UpstreamFailureEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.upstream.forecastCode = http.StatusInternalServerError

	rec := ts.do("POST", "/tools/forecast", `{"lat": 1, "lon": 2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var envelope struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if envelope.Status != "error" || !strings.HasPrefix(envelope.ErrorMessage, "Forecast retrieval failed: ") {
		t.Errorf("envelope = %+v, want retrieval failure", envelope)
	}
}

func TestPostForecast_InvalidBody(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/tools/forecast", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body.Error.Code != "INVALID_BODY" {
		t.Errorf("error code = %q, want INVALID_BODY", body.Error.Code)
	}
	if body.Error.RequestID == "" {
		t.Error("error requestId is empty, want correlation ID")
	}
}

func TestPostSearchLocation(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/tools/search-location", `{"query": "Basel"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var envelope struct {
		Status  string                    `json:"status"`
		Results []meteoblue.LocationMatch `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if envelope.Status != "success" || len(envelope.Results) != 1 {
		t.Fatalf("envelope = %+v", envelope)
	}
	if envelope.Results[0].Name != "Basel" {
		t.Errorf("result name = %q, want Basel", envelope.Results[0].Name)
	}
}

func TestPostSearchLocation_BlankQuery(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, body := range []string{`{}`, `{"query": "   "}`} {
		rec := ts.do("POST", "/tools/search-location", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
			continue
		}
		if !strings.Contains(rec.Body.String(), "INVALID_QUERY") {
			t.Errorf("body %s: response = %s, want INVALID_QUERY", body, rec.Body.String())
		}
	}
}

func TestCorrelationID(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("minted when absent", func(t *testing.T) {
		rec := ts.do("GET", "/health", "")
		if got := rec.Header().Get("X-Correlation-ID"); got == "" {
			t.Error("X-Correlation-ID header is empty")
		}
	})

	t.Run("inbound honored", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("X-Correlation-ID", "corr-123")
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Correlation-ID"); got != "corr-123" {
			t.Errorf("X-Correlation-ID = %q, want corr-123", got)
		}
	})
}

// TestRateLimit verifies the token bucket returns 429 once exhausted, and
// that /health is unaffected.
func TestRateLimit(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	ts := newTestServer(t, limiter)

	if rec := ts.do("POST", "/tools/forecast", `{"lat": 1, "lon": 2}`); rec.Code != http.StatusOK {
		t.Fatalf("first call status = %d, want 200", rec.Code)
	}

	rec := ts.do("POST", "/tools/forecast", `{"lat": 1, "lon": 2}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call status = %d, want 429", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "RATE_LIMITED") {
		t.Errorf("response = %s, want RATE_LIMITED", rec.Body.String())
	}

	if rec := ts.do("GET", "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 (outside rate limit)", rec.Code)
	}
}

func TestGetHealth(t *testing.T) {
	toolset := tools.NewToolset(nil, nil, t.TempDir(), zap.NewNop())

	t.Run("healthy", func(t *testing.T) {
		h := NewHandler(toolset, zap.NewNop(), func() error { return nil }, nil)
		rec := httptest.NewRecorder()
		h.GetHealth(rec, httptest.NewRequest("GET", "/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if body["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", body["status"])
		}
	})

	t.Run("degraded on cache failure", func(t *testing.T) {
		h := NewHandler(toolset, zap.NewNop(), func() error { return errors.New("memcache down") }, nil)
		rec := httptest.NewRecorder()
		h.GetHealth(rec, httptest.NewRequest("GET", "/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"degraded"`) {
			t.Errorf("body = %s, want degraded", rec.Body.String())
		}
	})
}
