// Package metrics exposes Prometheus collectors for the ledger, the firewall and the
// intrusion detector. A nil *Metrics is valid and records nothing, so components can
// be built without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Ledger
	LedgerAppends      *prometheus.CounterVec
	LedgerAppendErrors prometheus.Counter
	Verifications      *prometheus.CounterVec
	TamperDetected     prometheus.Counter
	TamperUnrecorded   prometheus.Counter
	CurrentBlock       prometheus.Gauge
	AppendDuration     prometheus.Histogram

	// Firewall
	Decisions  *prometheus.CounterVec
	BlockedIPs prometheus.Gauge
	Blocks     prometheus.Counter

	// Intrusion
	Assessments *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LedgerAppends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapguard_ledger_appends_total",
			Help: "Ledger entries appended by transaction type",
		}, []string{"tx_type"}),
		LedgerAppendErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "snapguard_ledger_append_errors_total",
			Help: "Failed ledger appends",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapguard_ledger_verifications_total",
			Help: "Entry verifications by result",
		}, []string{"result"}),
		TamperDetected: f.NewCounter(prometheus.CounterOpts{
			Name: "snapguard_ledger_tamper_detected_total",
			Help: "Entries whose stored payload no longer matches their hash",
		}),
		TamperUnrecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "snapguard_ledger_tamper_unrecorded_total",
			Help: "Corrupted entries whose integrity_violation row could not be written",
		}),
		CurrentBlock: f.NewGauge(prometheus.GaugeOpts{
			Name: "snapguard_ledger_current_block",
			Help: "Highest block number appended by this process",
		}),
		AppendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "snapguard_ledger_append_duration_seconds",
			Help:    "Time taken to append and read back one entry",
			Buckets: prometheus.DefBuckets,
		}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapguard_firewall_decisions_total",
			Help: "Firewall admission decisions by outcome",
		}, []string{"outcome"}),
		BlockedIPs: f.NewGauge(prometheus.GaugeOpts{
			Name: "snapguard_firewall_blocked_ips",
			Help: "Number of currently blocked IP addresses",
		}),
		Blocks: f.NewCounter(prometheus.CounterOpts{
			Name: "snapguard_firewall_blocks_total",
			Help: "IP addresses newly added to the blocklist",
		}),
		Assessments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "snapguard_intrusion_assessments_total",
			Help: "Intrusion assessments by threat level",
		}, []string{"level"}),
	}
}

func (m *Metrics) Appended(txType string, block int64, seconds float64) {
	if m == nil {
		return
	}
	m.LedgerAppends.WithLabelValues(txType).Inc()
	m.CurrentBlock.Set(float64(block))
	m.AppendDuration.Observe(seconds)
}

func (m *Metrics) AppendFailed() {
	if m == nil {
		return
	}
	m.LedgerAppendErrors.Inc()
}

func (m *Metrics) Verified(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Verifications.WithLabelValues("valid").Inc()
		return
	}
	m.Verifications.WithLabelValues("corrupted").Inc()
	m.TamperDetected.Inc()
}

func (m *Metrics) TamperNotRecorded() {
	if m == nil {
		return
	}
	m.TamperUnrecorded.Inc()
}

func (m *Metrics) Decision(outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Blocked(total int) {
	if m == nil {
		return
	}
	m.Blocks.Inc()
	m.BlockedIPs.Set(float64(total))
}

func (m *Metrics) BlocklistSize(total int) {
	if m == nil {
		return
	}
	m.BlockedIPs.Set(float64(total))
}

func (m *Metrics) Assessed(level string) {
	if m == nil {
		return
	}
	m.Assessments.WithLabelValues(level).Inc()
}

// Resumed sets the block gauge without counting an append.
func (m *Metrics) Resumed(block int64) {
	if m == nil {
		return
	}
	m.CurrentBlock.Set(float64(block))
}
