package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/serverhub/hubauth"
)

type fakeSource struct {
	snapshot hubauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() hubauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	h, err := Handler(c)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCollectorExportsCountersAndHistograms(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: hubauth.MetricsSnapshot{
			Counters: map[hubauth.MetricID]uint64{
				hubauth.MetricLoginSuccess: 7,
				hubauth.MetricBanAdded:     2,
			},
			Histograms: map[hubauth.MetricID][]uint64{
				hubauth.MetricAuthorizeLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	})

	out := scrape(t, c)
	for _, want := range []string{
		"hubauth_login_success_total 7",
		"hubauth_ban_added_total 2",
		"hubauth_logout_total 0",
		`hubauth_authorize_latency_seconds_bucket{le="0.01"} 1`,
		`hubauth_authorize_latency_seconds_bucket{le="1"} 28`,
		`hubauth_authorize_latency_seconds_bucket{le="+Inf"} 36`,
		"hubauth_authorize_latency_seconds_count 36",
		"hubauth_audit_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hubauth_session_resolve_latency_seconds_bucket") {
		t.Fatal("histograms missing from the snapshot must be skipped")
	}
}

func TestCollectorRegistersCleanly(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollectorFromSource(fakeSource{snapshot: hubauth.MetricsSnapshot{
		Counters:   map[hubauth.MetricID]uint64{},
		Histograms: map[hubauth.MetricID][]uint64{},
	}})
	if err := registry.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "hubauth_") {
			t.Fatalf("unexpected metric family %s", mf.GetName())
		}
	}
}

func TestCollectorFromEngineMetrics(t *testing.T) {
	m := hubauth.NewMetrics(hubauth.MetricsConfig{Enabled: true})
	m.Inc(hubauth.MetricAuthorizeAllowed)
	m.Inc(hubauth.MetricAuthorizeAllowed)

	out := scrape(t, NewCollectorFromSource(metricsOnly{m}))
	if !strings.Contains(out, "hubauth_authorize_allowed_total 2") {
		t.Fatalf("expected engine counter in output:\n%s", out)
	}
}

type metricsOnly struct {
	m *hubauth.Metrics
}

func (s metricsOnly) MetricsSnapshot() hubauth.MetricsSnapshot { return s.m.Snapshot() }
func (s metricsOnly) AuditDropped() uint64                     { return 0 }
