package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

const namespace = "edufi"

// Metrics holds the counters exported on /metrics. A nil *Metrics is valid
// and records nothing, so CLI paths can share code with the server.
type Metrics struct {
	registry     *prometheus.Registry
	quotes       *prometheus.CounterVec
	quoteLatency *prometheus.HistogramVec
	plans        *prometheus.CounterVec
	executions   *prometheus.CounterVec
	requests     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Swap quotes by route kind and outcome.",
		}, []string{"route_kind", "outcome"}),
		quoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_duration_seconds",
			Help:      "Time spent discovering and quoting a swap.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
		}, []string{"outcome"}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Action plans by intent and outcome.",
		}, []string{"intent", "outcome"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Executed actions by intent and final status.",
		}, []string{"intent", "status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		m.quotes, m.quoteLatency, m.plans, m.executions, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveQuote(routeKind string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	if routeKind == "" {
		routeKind = "none"
	}
	result := Outcome(err)
	m.quotes.WithLabelValues(routeKind, result).Inc()
	m.quoteLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePlan(intent string, err error) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(intent, Outcome(err)).Inc()
}

func (m *Metrics) ObserveExecution(intent, status string) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(intent, status).Inc()
}

func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, http.StatusText(code)).Inc()
}

// Outcome labels a result by its error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return clierr.KindOf(err)
}
