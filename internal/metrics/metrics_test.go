package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily は収集結果から指定名のメトリクスファミリーを探す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordHTTPRequest_CountsByRouteAndStatus はルートとステータス別に集計されることを検証する。
func TestRecordHTTPRequest_CountsByRouteAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("GET", "/api/listings/{id}", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/listings/{id}", 200, 20*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/listings/{id}", 404, 5*time.Millisecond)

	mf := findMetricFamily(t, reg, "zagmarket_http_requests_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		if labelValue(m, "route") != "/api/listings/{id}" {
			t.Errorf("route label = %q", labelValue(m, "route"))
		}
		switch labelValue(m, "status_code") {
		case "200":
			if v := m.GetCounter().GetValue(); v != 2 {
				t.Errorf("requests{status_code=200} = %v, want 2", v)
			}
		case "404":
			if v := m.GetCounter().GetValue(); v != 1 {
				t.Errorf("requests{status_code=404} = %v, want 1", v)
			}
		default:
			t.Errorf("unexpected status label: %s", labelValue(m, "status_code"))
		}
	}

	latency := findMetricFamily(t, reg, "zagmarket_http_request_duration_seconds")
	if got := latency.GetMetric()[0].GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("sample_count = %d, want 3", got)
	}
}

func TestRecordAuthFailure_LabelsReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthFailure("missing_token")
	c.RecordAuthFailure("missing_token")

	mf := findMetricFamily(t, reg, "zagmarket_auth_failures_total")
	m := mf.GetMetric()[0]
	if labelValue(m, "reason") != "missing_token" {
		t.Errorf("reason = %q, want missing_token", labelValue(m, "reason"))
	}
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("auth_failures_total = %v, want 2", v)
	}
}

func TestRecordAccountDeletion_AddsCascadedListings(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAccountDeletion("success", 3)
	c.RecordAccountDeletion("provider_error", 2)

	total := findMetricFamily(t, reg, "zagmarket_account_deletion_listings_total")
	if v := total.GetMetric()[0].GetCounter().GetValue(); v != 5 {
		t.Errorf("account_deletion_listings_total = %v, want 5", v)
	}

	outcomes := findMetricFamily(t, reg, "zagmarket_account_deletions_total")
	if len(outcomes.GetMetric()) != 2 {
		t.Errorf("expected 2 outcomes, got %d", len(outcomes.GetMetric()))
	}
}

func TestRecordListingMutationAndPurge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordListingMutation("create")
	c.RecordListingsPurged(7)

	mutations := findMetricFamily(t, reg, "zagmarket_listing_mutations_total")
	if v := mutations.GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("listing_mutations_total = %v, want 1", v)
	}
	purged := findMetricFamily(t, reg, "zagmarket_listings_purged_total")
	if v := purged.GetMetric()[0].GetCounter().GetValue(); v != 7 {
		t.Errorf("listings_purged_total = %v, want 7", v)
	}
}

func TestNopImplementsRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	r.RecordAccountDeletion("success", 1)
}
