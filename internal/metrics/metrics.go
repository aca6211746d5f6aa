// Package metrics holds the Prometheus collectors for identity resolution,
// guards, logins and calls to GitHub.
//
// Collectors live on an explicit registry rather than the global default, so
// every test can build its own Metrics and read counters back with testutil.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "idevgames"

// Resolution outcomes.
const (
	OutcomeAnonymous = "anonymous"
	OutcomeHealed    = "healed"
	OutcomeResolved  = "resolved"
	OutcomeError     = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	// resolutions counts Session Identity Resolver outcomes.
	// Labels: outcome (anonymous, healed, resolved, error)
	resolutions *prometheus.CounterVec

	// guardRejections counts requests a guard refused.
	// Labels: guard (admin_only), reason (unauthorized, forbidden, error)
	guardRejections *prometheus.CounterVec

	// logins counts completed OAuth callbacks.
	// Labels: outcome (success, unknown_identity, remote_error, error)
	logins *prometheus.CounterVec

	// oauthRequests counts outbound calls to GitHub.
	// Labels: call (exchange_code, profile_by_token, profile_by_login), result (ok, error)
	oauthRequests *prometheus.CounterVec

	// oauthDuration measures outbound call latency.
	// Labels: call
	oauthDuration *prometheus.HistogramVec
}

// New registers every collector, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_resolutions_total",
			Help:      "Session identity resolutions by outcome",
		}, []string{"outcome"}),
		guardRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_rejections_total",
			Help:      "Requests rejected by an authorization guard",
		}, []string{"guard", "reason"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "OAuth login callbacks by outcome",
		}, []string{"outcome"}),
		oauthRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_requests_total",
			Help:      "Outbound requests to the OAuth provider",
		}, []string{"call", "result"}),
		oauthDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oauth_request_duration_seconds",
			Help:      "Latency of outbound requests to the OAuth provider",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"call"}),
	}
}

// Registry exposes the underlying registry, e.g. for testutil.GatherAndCompare.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GuardRejection(guard, reason string) {
	if m == nil {
		return
	}
	m.guardRejections.WithLabelValues(guard, reason).Inc()
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// OAuthRequest records one outbound call and how long it took.
func (m *Metrics) OAuthRequest(call string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.oauthRequests.WithLabelValues(call, result).Inc()
	m.oauthDuration.WithLabelValues(call).Observe(time.Since(started).Seconds())
}
