// Package metrics exports run metrics in the Prometheus text format, for
// node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
)

// Recorder holds the metrics of one process
type Recorder struct {
	registry *prometheus.Registry

	Jobs            *prometheus.CounterVec
	Attempts        prometheus.Counter
	Retries         prometheus.Counter
	JobDuration     *prometheus.HistogramVec
	CleanupFailures prometheus.Counter
	Runs            *prometheus.CounterVec
	LastRun         prometheus.Gauge
}

// NewRecorder creates a Recorder on a private registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		Jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gh_implement_jobs_total",
				Help: "Jobs finished, by terminal status and priority",
			},
			[]string{"status", "priority"},
		),
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "gh_implement_job_attempts_total",
			Help: "Job attempts made",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "gh_implement_job_retries_total",
			Help: "Job attempts beyond the first",
		}),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gh_implement_job_duration_seconds",
				Help:    "Wall time per job across all attempts",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
			},
			[]string{"status"},
		),
		CleanupFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gh_implement_cleanup_failures_total",
			Help: "Cleanup steps that failed during the final sweep",
		}),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gh_implement_runs_total",
				Help: "Runs finished, by outcome",
			},
			[]string{"outcome"},
		),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gh_implement_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveResults records the terminal results of a run
func (r *Recorder) ObserveResults(results []domain.JobResult) {
	for _, res := range results {
		r.Jobs.WithLabelValues(string(res.Status), string(res.Priority)).Inc()
		r.Attempts.Add(float64(res.Attempts))
		r.Retries.Add(float64(res.Retries()))
		// skipped jobs never ran
		if res.Status != domain.StatusSkipped {
			r.JobDuration.WithLabelValues(string(res.Status)).Observe(res.Elapsed.Seconds())
		}
	}
}

// ObserveCleanup records failed cleanup steps
func (r *Recorder) ObserveCleanup(failures int) {
	if failures > 0 {
		r.CleanupFailures.Add(float64(failures))
	}
}

// ObserveRun records a finished run. outcome is "completed", "failed" or
// "interrupted".
func (r *Recorder) ObserveRun(outcome string, finished time.Time) {
	r.Runs.WithLabelValues(outcome).Inc()
	r.LastRun.Set(float64(finished.Unix()))
}

// WriteTextfile atomically writes all metrics to path
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
