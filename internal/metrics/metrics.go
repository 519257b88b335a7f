package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/status"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	daemonStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "daemonctl",
			Name:      "daemon_status",
			Help:      "Status of the last poll (1 = current kind, 0 = other kinds).",
		}, []string{"kind"},
	)
	workers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "daemonctl",
			Name:      "workers",
			Help:      "Number of workers reported by the last successful poll.",
		},
	)
	workerCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "daemonctl",
			Name:      "worker_cpu_percent",
			Help:      "CPU usage of each worker as reported by the supervisor.",
		}, []string{"pid"},
	)
	workerMem = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "daemonctl",
			Name:      "worker_mem_percent",
			Help:      "Memory usage of each worker as reported by the supervisor.",
		}, []string{"pid"},
	)
	polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "daemonctl",
			Name:      "polls_total",
			Help:      "Number of status polls by result (status kind or poll_error).",
		}, []string{"result"},
	)
	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "daemonctl",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a full status poll.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{daemonStatus, workers, workerCPU, workerMem, polls, pollDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by the monitor to record metrics.
// They no-op if Register hasn't been called.

// ObserveReport records the outcome of a successful poll. Worker series are
// replaced so that exited workers disappear.
func ObserveReport(rep daemon.StatusReport, seconds float64) {
	if !regOK.Load() {
		return
	}
	for _, k := range status.Kinds() {
		var v float64
		if k == rep.Status.Kind {
			v = 1
		}
		daemonStatus.WithLabelValues(k.String()).Set(v)
	}
	workerCPU.Reset()
	workerMem.Reset()
	for _, w := range rep.Workers {
		pid := strconv.Itoa(w.PID)
		workerCPU.WithLabelValues(pid).Set(w.CPUPercent)
		workerMem.WithLabelValues(pid).Set(w.MemPercent)
	}
	if rep.DaemonInfo != nil {
		workers.Set(float64(len(rep.Workers)))
	}
	polls.WithLabelValues(rep.Status.Kind.String()).Inc()
	pollDuration.Observe(seconds)
}

// PollErrorResult labels polls that failed without a status. It never
// collides with a status kind name.
const PollErrorResult = "poll_error"

// ObservePollError records a poll that failed with a hard error.
func ObservePollError(seconds float64) {
	if regOK.Load() {
		polls.WithLabelValues(PollErrorResult).Inc()
		pollDuration.Observe(seconds)
	}
}
