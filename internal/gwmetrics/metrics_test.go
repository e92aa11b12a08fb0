package gwmetrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_ActiveConnections_ReturnsToBaseline(t *testing.T) {
	c := New()
	before := testutil.ToFloat64(c.ActiveConnections)

	c.IncActive(1)
	c.IncActive(1)
	c.IncActive(-1)
	c.IncActive(-1)

	after := testutil.ToFloat64(c.ActiveConnections)
	if before != after {
		t.Errorf("active_connections did not return to baseline: before=%v after=%v", before, after)
	}
}

func TestCollector_IncError_BumpsBackpressure(t *testing.T) {
	c := New()
	c.IncError("backpressure")
	c.IncError("bad_request")

	if got := testutil.ToFloat64(c.BackpressureTotal); got != 1 {
		t.Errorf("backpressure_total = %v, want 1", got)
	}
}

func TestCollector_Handler_ServesPrometheusText(t *testing.T) {
	c := New()
	c.IncSessions()
	c.ObserveTTFAMillis(42)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "ws_gateway_sessions_total") {
		t.Error("expected ws_gateway_sessions_total in output")
	}
	if !strings.Contains(body, "ws_gateway_ttfa_ms") {
		t.Error("expected ws_gateway_ttfa_ms in output")
	}
}
