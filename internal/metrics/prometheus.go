package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	tasks           *prometheus.CounterVec
	usersRegistered prometheus.Counter
	authFailures    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasknest_tasks_total",
			Help: "Task mutations by operation.",
		}, []string{"operation"}),
		usersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasknest_users_registered_total",
			Help: "Accounts created.",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasknest_auth_failures_total",
			Help: "Rejected authentication attempts by reason.",
		}, []string{"reason"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tasknest_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.tasks,
		c.usersRegistered,
		c.authFailures,
		c.httpDuration,
	)

	return c
}

func (c *Collector) IncTaskCreated() {
	c.tasks.WithLabelValues("create").Inc()
}

func (c *Collector) IncTaskUpdated() {
	c.tasks.WithLabelValues("update").Inc()
}

func (c *Collector) IncTaskDeleted() {
	c.tasks.WithLabelValues("delete").Inc()
}

func (c *Collector) IncUserRegistered() {
	c.usersRegistered.Inc()
}

func (c *Collector) IncAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
