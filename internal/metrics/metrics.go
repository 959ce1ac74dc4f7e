// Package metrics exposes engine counters and the lock-wait histogram to
// Prometheus. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"susu-ledger-backend/internal/domain"
)

type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	lockWait   *prometheus.HistogramVec
	ledger     *prometheus.CounterVec
	jobRuns    *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "susu",
			Name:      "operations_total",
			Help:      "Engine operations by name and outcome kind.",
		}, []string{"operation", "outcome"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "susu",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for group and account locks.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2, 5},
		}, []string{"acquired"}),
		ledger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "susu",
			Name:      "ledger_entries_total",
			Help:      "Ledger entries appended, by kind and status.",
		}, []string{"kind", "status"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "susu",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job name and result.",
		}, []string{"job", "result"}),
	}
	reg.MustRegister(m.operations, m.lockWait, m.ledger, m.jobRuns,
		prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

// ObserveOperation counts op under "ok" or the error kind.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration, acquired bool) {
	if m == nil {
		return
	}
	label := "true"
	if !acquired {
		label = "false"
	}
	m.lockWait.WithLabelValues(label).Observe(d.Seconds())
}

func (m *Metrics) ObserveLedgerEntry(kind domain.TransactionKind, status domain.TransactionStatus) {
	if m == nil {
		return
	}
	m.ledger.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *Metrics) ObserveJob(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
