// Package metrics collects per-run counters and writes them in the Prometheus
// textfile format next to the case database.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "triage"

// Task outcomes recorded by the drain loop.
const (
	OutcomeOK      = "ok"
	OutcomeStopped = "stopped"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics owns a private registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasks            *prometheus.CounterVec
	moduleRuns       *prometheus.CounterVec
	moduleDuration   *prometheus.HistogramVec
	transitions      *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	filesExtracted   prometheus.Counter
	carveBytes       prometheus.Gauge
	carveTruncated   prometheus.Gauge
	filesCarved      prometheus.Counter
	reportingSeconds prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks taken from the queue by kind and outcome.",
		}, []string{"kind", "outcome"}),
		moduleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_runs_total",
			Help:      "Module invocations by kind, module and status.",
		}, []string{"kind", "module", "status"}),
		moduleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "module_duration_seconds",
			Help:      "Time spent in one module invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kind", "module"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_transitions_total",
			Help:      "Scheduler state transitions.",
		}, []string{"from", "to"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting in the queue.",
		}),
		filesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_extracted_total",
			Help:      "File records produced by image extraction.",
		}),
		carveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "carve_captured_bytes",
			Help:      "Unallocated bytes captured into the carve artifact.",
		}),
		carveTruncated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "carve_truncated",
			Help:      "1 when carve capture stopped at the size ceiling.",
		}),
		filesCarved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_carved_total",
			Help:      "Files recovered from the carve artifact.",
		}),
		reportingSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reporting_duration_seconds",
			Help:      "Wall time of the reporting pipeline.",
		}),
	}
	m.registry.MustRegister(
		m.tasks, m.moduleRuns, m.moduleDuration, m.transitions, m.queueDepth,
		m.filesExtracted, m.carveBytes, m.carveTruncated, m.filesCarved, m.reportingSeconds,
	)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// TaskProcessed counts a task's final outcome.
func (m *Metrics) TaskProcessed(kind, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(kind, outcome).Inc()
}

// ModuleRun records one module invocation.
func (m *Metrics) ModuleRun(kind, module, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.moduleRuns.WithLabelValues(kind, module, status).Inc()
	m.moduleDuration.WithLabelValues(kind, module).Observe(elapsed.Seconds())
}

// Transition counts a scheduler state change.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// QueueDepth is suitable as a queue length observer.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// FileExtracted counts one extracted file record.
func (m *Metrics) FileExtracted() {
	if m == nil {
		return
	}
	m.filesExtracted.Inc()
}

// CarveCaptured records the carve artifact outcome.
func (m *Metrics) CarveCaptured(bytes int64, truncated bool) {
	if m == nil {
		return
	}
	m.carveBytes.Set(float64(bytes))
	if truncated {
		m.carveTruncated.Set(1)
	} else {
		m.carveTruncated.Set(0)
	}
}

// FilesCarved counts recovered files.
func (m *Metrics) FilesCarved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.filesCarved.Add(float64(n))
}

// ReportingDuration records the reporting pipeline wall time.
func (m *Metrics) ReportingDuration(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reportingSeconds.Set(elapsed.Seconds())
}

// WriteTextfile writes the current values to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
