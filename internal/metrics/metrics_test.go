package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Connected("bitfinex")
	m.Connected("bitfinex")
	m.Reconnecting("bitfinex")
	m.MessageReceived("bitfinex", "data")
	m.DecodeError("bitfinex")
	m.SetState("bitfinex", 2)
	m.SetSubscriptions("bitfinex", 3)
	m.BookEmitted("bitfinex", "BTC_USD")
	m.OrderOp("bitfinex", "new", "success", 0.2)

	if got := testutil.ToFloat64(m.connects.WithLabelValues("bitfinex")); got != 2 {
		t.Errorf("connects = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.state.WithLabelValues("bitfinex")); got != 2 {
		t.Errorf("state = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.subscriptions.WithLabelValues("bitfinex")); got != 3 {
		t.Errorf("subscriptions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.orderOps.WithLabelValues("bitfinex", "new", "success")); got != 1 {
		t.Errorf("order ops = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Connected("bitflyer")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `coinstream_connects_total{venue="bitflyer"} 1`) {
		t.Errorf("exposition missing connects counter:\n%s", rec.Body.String())
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.Connected("x")
	m.Reconnecting("x")
	m.MessageReceived("x", "data")
	m.DecodeError("x")
	m.SetState("x", 1)
	m.SetSubscriptions("x", 1)
	m.BookEmitted("x", "y")
	m.OrderOp("x", "new", "timeout", 1)

	if m.Registry() != nil {
		t.Error("nil Metrics should have nil registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
