package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/orders/{id}")

	req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if metricsRR.Code != http.StatusOK {
		t.Fatalf("unexpected scrape status: %d", metricsRR.Code)
	}

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "tradewind_http_requests_total{code=\"418\",route=\"/orders/{id}\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "tradewind_http_request_duration_seconds_bucket{route=\"/orders/{id}\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestObserveTransitionCounts(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveTransition("RFQ", "ISSUED")
	metrics.ObserveTransition("RFQ", "ISSUED")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	want := "tradewind_order_transitions_total{from=\"RFQ\",to=\"ISSUED\"} 2"
	if !strings.Contains(rr.Body.String(), want) {
		t.Fatalf("expected %q in scrape, got: %s", want, rr.Body.String())
	}
}

func TestNilMetricsIsInert(t *testing.T) {
	var metrics *Metrics

	metrics.ObserveTransition("RFQ", "ISSUED")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rr := httptest.NewRecorder()
	metrics.Middleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("nil middleware should pass through, got %d", rr.Code)
	}

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if scrape.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil handler should respond 503, got %d", scrape.Code)
	}
}
