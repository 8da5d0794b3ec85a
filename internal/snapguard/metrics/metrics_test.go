package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Appended("security_audit", 7, 0.01)
	m.Appended("security_audit", 8, 0.01)
	m.Verified(true)
	m.Verified(false)
	m.Decision("allowed")
	m.Blocked(3)
	m.TamperNotRecorded()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerAppends.WithLabelValues("security_audit")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.CurrentBlock))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TamperDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("allowed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BlockedIPs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TamperUnrecorded))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Appended("x", 1, 0)
		m.AppendFailed()
		m.Verified(false)
		m.TamperNotRecorded()
		m.Decision("blocked")
		m.Blocked(1)
		m.BlocklistSize(0)
		m.Assessed("none")
	})
}
