package auth

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus collectors for authentication.
type Metrics struct {
	attempts *prometheus.CounterVec
}

// NewMetrics creates the auth metric collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ugoite_auth_attempts_total",
			Help: "Total number of authentication attempts by method and result.",
		}, []string{"method", "result"}),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.attempts)
}

// ObserveAttempt records one authentication attempt. result is "ok" or an
// error code.
func (m *Metrics) ObserveAttempt(method, result string) {
	m.attempts.WithLabelValues(method, result).Inc()
}
