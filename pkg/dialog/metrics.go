package dialog

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is an optional Prometheus-backed instrumentation hook. A nil
// *Metrics is valid everywhere it's used (every method is nil-safe), so a
// Dialog built without one pays no cost and emits nothing.
type Metrics struct {
	once sync.Once

	stateTransitions  *prometheus.CounterVec
	rejectedCSeq      prometheus.Counter
	rejectedOverlap   prometheus.Counter
	pendingInvites    prometheus.Gauge
	uacTransactions   prometheus.Gauge
	uasTransactions   prometheus.Gauge
}

// NewMetrics registers a collector under namespace/subsystem "sip"/"dialog"
// with the default Prometheus registerer, modeled on
// arzzra-soft_phone/pkg/dialog/metrics.go but trimmed to the events this
// package's state machine actually produces.
func NewMetrics() *Metrics {
	return &Metrics{
		stateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sip",
			Subsystem: "dialog",
			Name:      "state_transitions_total",
			Help:      "Dialog status transitions by event name.",
		}, []string{"event"}),
		rejectedCSeq: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sip",
			Subsystem: "dialog",
			Name:      "rejected_cseq_total",
			Help:      "Inbound requests rejected for out-of-order CSeq.",
		}),
		rejectedOverlap: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sip",
			Subsystem: "dialog",
			Name:      "rejected_overlapping_invite_total",
			Help:      "Inbound INVITEs rejected for overlapping an already-pending one.",
		}),
		pendingInvites: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "sip",
			Subsystem: "dialog",
			Name:      "pending_invites",
			Help:      "Outstanding UAS INVITE transactions for this dialog.",
		}),
		uacTransactions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "sip",
			Subsystem: "dialog",
			Name:      "uac_transactions",
			Help:      "Outstanding UAC transactions for this dialog.",
		}),
		uasTransactions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "sip",
			Subsystem: "dialog",
			Name:      "uas_transactions",
			Help:      "Outstanding UAS transactions for this dialog.",
		}),
	}
}

func (m *Metrics) transition(event string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(event).Inc()
}

func (m *Metrics) cseqRejected() {
	if m == nil {
		return
	}
	m.rejectedCSeq.Inc()
}

func (m *Metrics) overlapRejected() {
	if m == nil {
		return
	}
	m.rejectedOverlap.Inc()
}

func (m *Metrics) tableSizes(pending, uac, uas int) {
	if m == nil {
		return
	}
	m.pendingInvites.Set(float64(pending))
	m.uacTransactions.Set(float64(uac))
	m.uasTransactions.Set(float64(uas))
}
