package httpserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/helixir/library-lending-service/internal/config"
	"github.com/helixir/library-lending-service/internal/database"
	"github.com/helixir/library-lending-service/internal/observability"
)

func TestCorrelationIDMiddleware_UsesExistingHeader(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := observability.CorrelationIDFromContext(r.Context())
		if cid != "test-correlation-123" {
			t.Errorf("expected correlation ID test-correlation-123, got %s", cid)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(HeaderCorrelationID, "test-correlation-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get(HeaderCorrelationID); got != "test-correlation-123" {
		t.Errorf("expected response header test-correlation-123, got %s", got)
	}
}

func TestCorrelationIDMiddleware_FallsBackToRequestID(t *testing.T) {
	var rc observability.RequestContext
	handler := middleware.RequestID(correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc = observability.RequestContextFromContext(r.Context())
	})))

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if rc.RequestID == "" {
		t.Fatal("expected request ID in context")
	}
	if rc.CorrelationID != rc.RequestID {
		t.Errorf("expected correlation ID %q, got %q", rc.RequestID, rc.CorrelationID)
	}
	if rc.ClientIP != "203.0.113.7" {
		t.Errorf("expected client IP 203.0.113.7, got %q", rc.ClientIP)
	}
}

func TestCorrelationIDMiddleware_GeneratesIfMissing(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	if rr.Header().Get(HeaderCorrelationID) == "" {
		t.Error("expected generated correlation ID")
	}
}

func TestAccessLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	metrics := observability.NewMetrics("http_access_log_test")
	s := NewServer(Config{}, Dependencies{
		Lending: &mockLending{},
		Catalog: &mockCatalog{},
		Members: &mockMembers{},
		Health:  stubHealth{status: database.StatusHealthy},
		Metrics: metrics,
	}, zerolog.New(&buf))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/books/not-a-uuid", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	line := buf.String()
	for _, want := range []string{`"status":400`, `"route":"/api/v1/books/{bookID}"`, `"request_id"`, `"message":"http request"`} {
		if !strings.Contains(line, want) {
			t.Errorf("access log missing %s: %s", want, line)
		}
	}
	got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/api/v1/books/{bookID}", "400"))
	if got != 1 {
		t.Errorf("expected 1 request counted, got %v", got)
	}
}

func TestRecovererReturns500(t *testing.T) {
	s := newTestHTTPServer(&mockLending{}, nil, nil)
	s.router.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	metrics := observability.NewMetrics("http_rate_limit_test")
	s := NewServer(Config{
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2, IdleTTL: time.Minute},
	}, Dependencies{
		Lending: &mockLending{},
		Catalog: &mockCatalog{},
		Members: &mockMembers{},
		Health:  stubHealth{status: database.StatusHealthy},
		Metrics: metrics,
	}, zerolog.Nop())

	request := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		return rr.Code
	}

	if code := request("198.51.100.1:1000"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := request("198.51.100.1:1001"); code != http.StatusOK {
		t.Fatalf("second request: expected 200, got %d", code)
	}
	if code := request("198.51.100.1:1002"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: expected 429, got %d", code)
	}
	if code := request("198.51.100.2:1000"); code != http.StatusOK {
		t.Errorf("other client: expected 200, got %d", code)
	}
	if got := testutil.ToFloat64(metrics.HTTPRateLimited); got != 1 {
		t.Errorf("expected 1 rate limited request, got %v", got)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	s := newTestHTTPServer(nil, nil, nil)
	if s.limiter != nil {
		t.Fatal("expected no limiter when requests_per_second is zero")
	}
	for i := 0; i < 20; i++ {
		if rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
}
