package session

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "salesforce_mcp"

// Metrics exports pool activity to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	builds          *prometheus.CounterVec
	probes          *prometheus.CounterVec
	retries         *prometheus.CounterVec
	refreshFailures *prometheus.CounterVec
	sessions        prometheus.Gauge
}

// NewMetrics creates the pool metrics and registers them with reg.
// Collectors already registered by an earlier pool are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "session_builds_total",
			Help:      "Session constructions by auth mode and result.",
		}, []string{"mode", "result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "session_probes_total",
			Help:      "Identity probes of cached sessions by auth mode and result.",
		}, []string{"mode", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "expired_session_retries_total",
			Help:      "Operations retried after an expired session.",
		}, []string{"mode"}),
		refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "token_refresh_failures_total",
			Help:      "Failed token refreshes by auth mode and provider error code.",
		}, []string{"mode", "code"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "cached_sessions",
			Help:      "Sessions currently cached in the pool.",
		}),
	}

	var err error
	if m.builds, err = register(reg, m.builds); err != nil {
		return nil, err
	}
	if m.probes, err = register(reg, m.probes); err != nil {
		return nil, err
	}
	if m.retries, err = register(reg, m.retries); err != nil {
		return nil, err
	}
	if m.refreshFailures, err = register(reg, m.refreshFailures); err != nil {
		return nil, err
	}
	if m.sessions, err = register(reg, m.sessions); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register pool metric: %w", err)
	}
	return collector, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) recordBuild(mode AuthMode, err error) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(string(mode), result(err)).Inc()
}

func (m *Metrics) recordProbe(mode AuthMode, err error) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(string(mode), result(err)).Inc()
}

func (m *Metrics) recordRetry(mode AuthMode) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(mode)).Inc()
}

func (m *Metrics) recordRefreshFailure(mode AuthMode, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.refreshFailures.WithLabelValues(string(mode), code).Inc()
}

func (m *Metrics) setSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
