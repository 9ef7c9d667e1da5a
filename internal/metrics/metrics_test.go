package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	c := New("fintrack")

	c.ObservePublish("transaction.created", nil)
	c.ObservePublish("transaction.created", nil)
	c.ObservePublish("transaction.deleted", errors.New("broker down"))
	c.ObserveCache("monthly", true)
	c.ObserveCache("monthly", false)
	c.ObserveCache("monthly", false)
	c.BudgetAlertFired()
	c.RecurringCreated(3)
	c.ObserveEvent(nil)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"published", testutil.ToFloat64(c.eventsPublished.WithLabelValues("transaction.created")), 2},
		{"failed", testutil.ToFloat64(c.eventsFailed.WithLabelValues("transaction.deleted")), 1},
		{"hits", testutil.ToFloat64(c.cacheHits.WithLabelValues("monthly")), 1},
		{"misses", testutil.ToFloat64(c.cacheMisses.WithLabelValues("monthly")), 2},
		{"alerts", testutil.ToFloat64(c.budgetAlerts), 1},
		{"recurring", testutil.ToFloat64(c.recurringExecuted), 3},
		{"handled", testutil.ToFloat64(c.eventsHandled.WithLabelValues("ok")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestHandlerExposesRequests(t *testing.T) {
	c := New("fintrack")
	c.ObserveRequest("/api/accounts/{id}", "GET", 200, 15*time.Millisecond)
	c.ObserveRequest("", "GET", 404, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`fintrack_http_requests_total{method="GET",route="/api/accounts/{id}",status="200"} 1`,
		`fintrack_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
		"fintrack_http_request_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
