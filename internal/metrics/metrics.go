// Package metrics exposes Prometheus counters for the cache, the task
// dispatcher and the HTTP surface.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-survey-service/cache"
	"github.com/goliatone/go-survey-service/internal/tasks"
)

const namespace = "survey"

// Metrics holds every collector. It implements cache.Observer and
// tasks.Observer.
type Metrics struct {
	registry *prometheus.Registry

	cacheRequests      *prometheus.CounterVec
	cacheErrors        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheDeleted       *prometheus.CounterVec
	tasksDispatched    *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

var (
	_ cache.Observer = (*Metrics)(nil)
	_ tasks.Observer = (*Metrics)(nil)
)

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by resource and result.",
		}, []string{"resource", "result"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Failed cache backend operations.",
		}, []string{"op"}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Prefix invalidations by resource.",
		}, []string{"resource"}),
		cacheDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidated_keys_total",
			Help:      "Keys removed by prefix invalidations.",
		}, []string{"resource"}),
		tasksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched_total",
			Help:      "Task submissions by task and outcome.",
		}, []string{"task", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	for _, c := range []prometheus.Collector{
		m.cacheRequests, m.cacheErrors, m.cacheInvalidations, m.cacheDeleted,
		m.tasksDispatched, m.httpRequests, m.httpDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// resource is the logical name of a key: everything before the first
// separator.
func resource(key string) string {
	if i := strings.Index(key, cache.KeySeparator); i >= 0 {
		return key[:i]
	}
	return key
}

func (m *Metrics) ObserveGet(key string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(resource(key), result).Inc()
}

func (m *Metrics) ObserveError(op string) {
	m.cacheErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveInvalidation(prefix string, deleted int) {
	r := resource(prefix)
	m.cacheInvalidations.WithLabelValues(r).Inc()
	m.cacheDeleted.WithLabelValues(r).Add(float64(deleted))
}

func (m *Metrics) ObserveDispatch(task string, err error) {
	outcome := "submitted"
	if err != nil {
		outcome = "failed"
	}
	m.tasksDispatched.WithLabelValues(task, outcome).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
