package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordAuthz(t *testing.T) {
	c := New()
	c.RecordAuthz("projects", "object", "not_found")
	c.RecordAuthz("projects", "object", "not_found")
	c.RecordAuthz("projects", "collection", "allow")

	if got := testutil.ToFloat64(c.AuthzDecisions.WithLabelValues("projects", "object", "not_found")); got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(c.AuthzDecisions.WithLabelValues("projects", "collection", "allow")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.RecordAuthz("g", "collection", "allow")
	c.RecordRoleAssignment("owner", "ok")
	c.RecordDemotion("owner", "supervisor")
	c.RecordTenantResolution("ok")
	c.RecordTenantCache(true)
	c.RecordQuotaRejection("acme")
	c.RecordArchived(3)
	c.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.RecordDemotion("owner", "supervisor")
	c.RecordArchived(2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`projecthub_role_demotions_total{from="owner",to="supervisor"} 1`,
		`projecthub_projects_archived_total 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}
