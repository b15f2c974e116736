package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cube"

// Metrics holds the collectors shared by the auth, profile and gateway
// services. Each instance owns its registry so tests can run in parallel.
type Metrics struct {
	registry        *prometheus.Registry
	loginAttempts   *prometheus.CounterVec
	edgeRejections  *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	proxyRequests   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome (initiated, issued, or the failing stage).",
		}, []string{"outcome"}),
		edgeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edge_rejections_total",
			Help:      "Requests rejected at a service boundary by reason.",
		}, []string{"reason"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of identity provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10),
		}, []string{"operation", "outcome"}),
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_proxied_requests_total",
			Help:      "Requests forwarded by the gateway by upstream and status class.",
		}, []string{"upstream", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.loginAttempts,
		m.edgeRejections,
		m.providerLatency,
		m.proxyRequests,
	)
	return m
}

func (m *Metrics) LoginOutcome(outcome string) {
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EdgeRejection(reason string) {
	m.edgeRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ProviderCall(operation, outcome string, elapsed time.Duration) {
	m.providerLatency.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// ProxiedRequest counts a gateway response by its status class ("2xx", "5xx", ...).
func (m *Metrics) ProxiedRequest(upstream string, status int) {
	class := "unknown"
	if status >= 100 && status < 600 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.proxyRequests.WithLabelValues(upstream, class).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
