package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collectors holds the vigil metric families, registered on their own registry.
type Collectors struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	commitsTotal    *prometheus.CounterVec
	commitDuration  *prometheus.HistogramVec
}

// NewCollectors creates and registers all metric families under namespace.
func NewCollectors(namespace string) *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of dispatched requests by outcome",
			},
			[]string{"entrypoint", "kind", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of request dispatch in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"entrypoint", "kind"},
		),
		commitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_commits_total",
				Help:      "Total number of store transaction commits by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		commitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_commit_duration_seconds",
				Help:      "Duration of store transaction commits in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"backend"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requestsTotal,
		c.requestDuration,
		c.commitsTotal,
		c.commitDuration,
	)
	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRequest records one dispatched request.
func (c *Collectors) ObserveRequest(entrypoint, kind, outcome string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(entrypoint, kind, outcome).Inc()
	c.requestDuration.WithLabelValues(entrypoint, kind).Observe(duration.Seconds())
}

// ObserveCommit records one store commit. Its signature matches
// storage.CommitObserver.
func (c *Collectors) ObserveCommit(backend string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.commitsTotal.WithLabelValues(backend, outcome).Inc()
	c.commitDuration.WithLabelValues(backend).Observe(duration.Seconds())
}
