package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAffiliateMetricsCounters(t *testing.T) {
	m := Affiliate()
	if Affiliate() != m {
		t.Fatalf("expected singleton metrics registry")
	}

	before := testutil.ToFloat64(m.codeAssignments.WithLabelValues("exhausted"))
	m.RecordCodeAssignment("exhausted")
	if got := testutil.ToFloat64(m.codeAssignments.WithLabelValues("exhausted")); got != before+1 {
		t.Fatalf("unexpected exhausted count: %v", got)
	}

	m.RecordTransition("approved", 15, 90000)
	if got := testutil.ToFloat64(m.commissionAmount.WithLabelValues("approved", "15")); got < 90000 {
		t.Fatalf("unexpected approved amount: %v", got)
	}

	failedBefore := testutil.ToFloat64(m.notifications.WithLabelValues("referral_used", "failed"))
	m.RecordNotification("referral_used", errors.New("smtp down"))
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("referral_used", "failed")); got != failedBefore+1 {
		t.Fatalf("unexpected failed notification count: %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *AffiliateMetrics
	m.RecordCodeAssignment("assigned")
	m.RecordCodeCollision()
	m.RecordAttribution("code", "attributed")
	m.RecordNotification("x", nil)
}
