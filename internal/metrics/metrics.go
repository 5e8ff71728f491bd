// Package metrics holds the prometheus counters recorded by the session client.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blog_session"

// Refresh results
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
)

type Metrics struct {
	refreshes    *prometheus.CounterVec
	terminations *prometheus.CounterVec
	retries      *prometheus.CounterVec
}

// New creates the counters and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Token refresh attempts by result.",
		}, []string{"result"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Session terminations by reason.",
		}, []string{"reason"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Requests re-sent after a transient failure, by HTTP method.",
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.terminations, m.retries)
	}
	return m
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) Termination(reason string) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(reason).Inc()
}

func (m *Metrics) Retry(method string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(method).Inc()
}

// RefreshCount, TerminationCount and RetryCount read a counter back; used by tests and the CLI.
func (m *Metrics) RefreshCount(result string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.refreshes.WithLabelValues(result))
}

func (m *Metrics) TerminationCount(reason string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.terminations.WithLabelValues(reason))
}

func (m *Metrics) RetryCount(method string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.retries.WithLabelValues(method))
}
