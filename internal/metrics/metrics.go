// Package metrics holds the prometheus collectors of the course server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "courses"

// Metrics groups collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	remoteFallbacks  *prometheus.CounterVec
	remoteErrors     *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	purchases        *prometheus.CounterVec
	referralUnlocks  prometheus.Counter
	activity         *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	websocketClients prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		remoteFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_fallback_total",
			Help:      "Operations served from the local store because the remote was unreachable",
		}, []string{"op"}),
		remoteErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_error_total",
			Help:      "Best-effort remote calls that failed and were swallowed",
		}, []string{"op"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		purchases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_transitions_total",
			Help:      "Purchases created (pending) and moved to a terminal status",
		}, []string{"status"}),
		referralUnlocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_unlocks_total",
			Help:      "Free courses unlocked through referrals",
		}),
		activity: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Tracked activity events by action",
		}, []string{"action"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		websocketClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "referral_stream_clients",
			Help:      "Open referral progress websocket connections",
		}),
	}
}

// RemoteFallback counts a local-only fallback for op.
func (m *Metrics) RemoteFallback(op string) {
	if m == nil {
		return
	}
	m.remoteFallbacks.WithLabelValues(op).Inc()
}

// RemoteError counts a swallowed remote failure for op.
func (m *Metrics) RemoteError(op string) {
	if m == nil {
		return
	}
	m.remoteErrors.WithLabelValues(op).Inc()
}

// BreakerState records a breaker state: 0 closed, 1 half-open, 2 open.
func (m *Metrics) BreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(state)
}

// Purchase counts a purchase entering status.
func (m *Metrics) Purchase(status string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(status).Inc()
}

// ReferralUnlock counts an unlocked free course.
func (m *Metrics) ReferralUnlock() {
	if m == nil {
		return
	}
	m.referralUnlocks.Inc()
}

// Activity counts a tracked event.
func (m *Metrics) Activity(action string) {
	if m == nil {
		return
	}
	m.activity.WithLabelValues(action).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path, status).Observe(seconds)
}

// StreamOpened and StreamClosed track referral websocket clients.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.websocketClients.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.websocketClients.Dec()
}
