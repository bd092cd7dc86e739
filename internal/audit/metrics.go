package audit

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus collectors for the audit ledger.
type Metrics struct {
	eventsAppended     prometheus.Counter
	chainVerifications *prometheus.CounterVec
	eventsTrimmed      prometheus.Counter
	ledgerSize         prometheus.Gauge
}

// NewMetrics creates the audit metric collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ugoite_audit_events_appended_total",
			Help: "Total number of audit events appended.",
		}),
		chainVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ugoite_audit_chain_verifications_total",
			Help: "Total number of hash chain verifications by result.",
		}, []string{"result"}),
		eventsTrimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ugoite_audit_events_trimmed_total",
			Help: "Total number of audit events dropped by retention trimming.",
		}),
		ledgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ugoite_audit_ledger_events",
			Help: "Number of events in the most recently written ledger.",
		}),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.eventsAppended,
		m.chainVerifications,
		m.eventsTrimmed,
		m.ledgerSize,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveAppend records a successful append and the resulting ledger size.
func (m *Metrics) ObserveAppend(ledgerSize int) {
	m.eventsAppended.Inc()
	m.ledgerSize.Set(float64(ledgerSize))
}

// ObserveVerification records the outcome of a chain verification.
func (m *Metrics) ObserveVerification(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.chainVerifications.WithLabelValues(result).Inc()
}

// ObserveTrim records events dropped by retention trimming.
func (m *Metrics) ObserveTrim(dropped int) {
	m.eventsTrimmed.Add(float64(dropped))
}
