package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatal("expected generated request id in context")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header %q does not match context id %q", rec.Header().Get(RequestIDHeader), seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "client-id" {
		t.Errorf("expected client-supplied id, got %q", seen)
	}
}

func TestMetricsLabelsByRoutePattern(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/polynomials/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /api/v1/add", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	h := Metrics(m, mux)(mux)

	for _, target := range []string{"/api/v1/polynomials/alpha", "/api/v1/polynomials/beta"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/add", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	tests := []struct {
		method, route, status string
		want                  float64
	}{
		{http.MethodGet, "/api/v1/polynomials/{name}", "404", 2},
		{http.MethodPost, "/api/v1/add", "200", 1},
		{http.MethodGet, "unmatched", "404", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(tt.method, tt.route, tt.status))
		if got != tt.want {
			t.Errorf("%s %s %s: expected %v, got %v", tt.method, tt.route, tt.status, tt.want, got)
		}
	}
	if inflight := testutil.ToFloat64(m.HTTPRequestsInFlight); inflight != 0 {
		t.Errorf("expected 0 in flight, got %v", inflight)
	}
}

func TestTimeoutWritesGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	h := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer close(release)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}
}

func TestTimeoutPassesFastHandler(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/api/v1/polynomials/p")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"name":"p"}`))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/polynomials", nil))
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if rec.Header().Get("Location") != "/api/v1/polynomials/p" {
		t.Errorf("header not copied: %v", rec.Header())
	}
	if rec.Body.String() != `{"name":"p"}` {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestRateLimitPerClient(t *testing.T) {
	limiter := ratelimit.New(time.Minute)
	defer limiter.Stop()
	h := RateLimit(limiter, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/add", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence %v", codes)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/add", nil)
	other.Header.Set("X-Forwarded-For", "10.0.0.2, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Errorf("expected separate budget for forwarded client, got %d", rec.Code)
	}

	health := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	health.RemoteAddr = "10.0.0.1:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, health)
	if rec.Code != http.StatusOK {
		t.Errorf("health must bypass rate limit, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	called := false
	h := CORS(CORSConfig{
		AllowOrigins: []string{"https://app.example"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       600,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	pre := httptest.NewRequest(http.MethodOptions, "/api/v1/add", nil)
	pre.Header.Set("Origin", "https://app.example")
	pre.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	if rec.Code != http.StatusNoContent || called {
		t.Fatalf("expected preflight 204 without calling next, got %d called=%v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "GET, POST" {
		t.Errorf("unexpected allow-methods %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/add", nil)
	other.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if !called || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("disallowed origin must pass through without CORS headers")
	}
}
