// Package metrics exposes the Prometheus collectors for the gatekeeper's
// core subsystems, scraped at GET /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionDecisionsTotal counts admission verdicts by result and
	// reason (e.g. result="allow" reason="bypass_annotation", result="deny"
	// reason="freeze_active").
	AdmissionDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Total admission decisions by result and reason.",
		},
		[]string{"result", "reason"},
	)

	// AdmissionDuration tracks end-to-end pipeline latency.
	AdmissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admission_duration_seconds",
			Help:    "Duration of the admission decision pipeline.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// ConfigReloadErrorsTotal mirrors the Config Loader's reloadErrors
	// counter.
	ConfigReloadErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "config_reload_errors_total",
			Help: "Total number of failed policy record reload attempts.",
		},
	)

	// ExemptionsActive gauges the current count of non-expired exemptions.
	ExemptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exemptions_active",
			Help: "Current number of non-expired temporary exemptions.",
		},
	)

	// NotificationDeliveriesTotal counts sink delivery outcomes.
	NotificationDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total notification deliveries by sink and outcome.",
		},
		[]string{"sink", "outcome"},
	)
)

// Recorder adapts the package-level collectors to admission.MetricsRecorder
// without admission depending on prometheus directly.
type Recorder struct{}

// RecordDecision implements admission.MetricsRecorder.
func (Recorder) RecordDecision(allowed bool, reason string) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	AdmissionDecisionsTotal.WithLabelValues(result, reason).Inc()
}

// ObserveDuration implements admission.MetricsRecorder.
func (Recorder) ObserveDuration(d time.Duration) {
	AdmissionDuration.Observe(d.Seconds())
}
