// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

const namespace = "groupbuy"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics implements teams.Observer and progress.Counter.
type Metrics struct {
	teamsCreated    prometheus.Counter
	joins           *prometheus.CounterVec
	payments        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	eventsProjected *prometheus.CounterVec
	requestTotal    *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	registry        prometheus.Gatherer
}

// New registers every collector on reg. Passing prometheus.NewRegistry() keeps
// tests isolated from the global registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		teamsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "teams", Name: "created_total",
			Help: "Teams created successfully",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "teams", Name: "join_attempts_total",
			Help: "Join attempts by result",
		}, []string{"result"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "payments", Name: "resolved_total",
			Help: "Simulated payments by final status",
		}, []string{"status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "teams", Name: "transitions_total",
			Help: "Teams leaving Active by target status",
		}, []string{"status"}),
		eventsProjected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "progress", Name: "events_projected_total",
			Help: "Team events applied to the status cache",
		}, []string{"event_type"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "http_requests_total",
			Help: "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "api", Name: "http_request_duration_seconds",
			Help:    "Latency distribution of HTTP handlers",
			Buckets: histogramBuckets,
		}, []string{"method", "route", "status"}),
		registry: reg,
	}
	var err error
	if m.teamsCreated, err = register(reg, m.teamsCreated); err != nil {
		return nil, err
	}
	for _, vec := range []**prometheus.CounterVec{&m.joins, &m.payments, &m.transitions, &m.eventsProjected, &m.requestTotal} {
		if *vec, err = register(reg, *vec); err != nil {
			return nil, err
		}
	}
	if m.requestLatency, err = register(reg, m.requestLatency); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) TeamCreated()                          { m.teamsCreated.Inc() }
func (m *Metrics) JoinResult(result string)              { m.joins.WithLabelValues(result).Inc() }
func (m *Metrics) PaymentResolved(s teams.PaymentStatus) { m.payments.WithLabelValues(string(s)).Inc() }
func (m *Metrics) TeamTransitioned(to teams.TeamStatus)  { m.transitions.WithLabelValues(string(to)).Inc() }
func (m *Metrics) EventProjected(eventType string)       { m.eventsProjected.WithLabelValues(eventType).Inc() }

// register reuses an already registered collector of the same shape.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	labels := prometheus.Labels{"method": method, "route": route, "status": strconv.Itoa(status)}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
