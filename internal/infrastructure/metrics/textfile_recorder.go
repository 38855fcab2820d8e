package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

const namespace = "appdeploy"

// Step outcome label values
const (
	OutcomeSucceeded      = "succeeded"
	OutcomeFailed         = "failed"
	OutcomeOptionalFailed = "optional_failed"
)

// TextfileRecorder writes the metrics of each run in the Prometheus text
// format, for pickup by a node exporter textfile collector. Every run
// replaces the file.
type TextfileRecorder struct {
	path string
}

var _ ports.MetricsRecorder = (*TextfileRecorder)(nil)

// NewTextfileRecorder creates a recorder writing to path
func NewTextfileRecorder(path string) *TextfileRecorder {
	return &TextfileRecorder{path: path}
}

// runMetrics holds the collectors for one run
type runMetrics struct {
	registry     *prometheus.Registry
	stepDuration *prometheus.GaugeVec
	stepsTotal   *prometheus.CounterVec
	success      prometheus.Gauge
	exitCode     prometheus.Gauge
	lastRun      prometheus.Gauge
	skipped      prometheus.Gauge
}

func newRunMetrics(pipelineName string) *runMetrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"pipeline": pipelineName}

	m := &runMetrics{
		registry: reg,
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "step_duration_seconds",
			Help:        "Duration of each executed step in seconds",
			ConstLabels: labels,
		}, []string{"step", "outcome"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "steps_total",
			Help:        "Number of executed steps by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pipeline_success",
			Help:        "1 if the last run succeeded, 0 otherwise",
			ConstLabels: labels,
		}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pipeline_exit_code",
			Help:        "Exit code of the last run",
			ConstLabels: labels,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pipeline_last_run_timestamp_seconds",
			Help:        "Unix time the last run finished",
			ConstLabels: labels,
		}),
		skipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "steps_skipped",
			Help:        "Declared steps that never ran in the last run",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.stepDuration, m.stepsTotal, m.success, m.exitCode, m.lastRun, m.skipped)

	// Zero every outcome so absent series read as 0 rather than missing
	for _, outcome := range []string{OutcomeSucceeded, OutcomeFailed, OutcomeOptionalFailed} {
		m.stepsTotal.WithLabelValues(outcome)
	}

	return m
}

// RecordReport writes the metrics of report to the textfile
func (r *TextfileRecorder) RecordReport(report *pipeline.Report) error {
	name := report.Name
	if name == "" {
		name = "default"
	}

	m := newRunMetrics(name)

	for _, result := range report.Results {
		outcome := Outcome(result)
		m.stepDuration.WithLabelValues(result.Name, outcome).Set(result.Duration.Seconds())
		m.stepsTotal.WithLabelValues(outcome).Inc()
	}

	if report.Succeeded() {
		m.success.Set(1)
	}
	m.exitCode.Set(float64(report.ExitCode()))
	m.lastRun.Set(float64(report.FinishedAt.Unix()))
	m.skipped.Set(float64(report.Skipped()))

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	if err := prometheus.WriteToTextfile(r.path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}

	return nil
}

// Outcome returns the outcome label for a step result
func Outcome(result pipeline.StepResult) string {
	switch {
	case result.Succeeded:
		return OutcomeSucceeded
	case result.Optional:
		return OutcomeOptionalFailed
	default:
		return OutcomeFailed
	}
}
