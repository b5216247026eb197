// Package metrics counts resolution, fetch, and probe outcomes for one tree build and
// writes them in the Prometheus text format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/temirov/subpkg/internal/mirrors"
)

const (
	namespaceConstant                  = "subpkg"
	resolutionsMetricNameConstant      = "resolutions_total"
	resolutionsMetricHelpConstant      = "Subpackage nodes resolved, by status."
	fetchAttemptsMetricNameConstant    = "fetch_attempts_total"
	fetchAttemptsMetricHelpConstant    = "Fetch orchestrator invocations, by outcome."
	probeFailuresMetricNameConstant    = "mirror_probe_failures_total"
	probeFailuresMetricHelpConstant    = "Mirror probes that failed or timed out."
	probeDurationMetricNameConstant    = "mirror_probe_duration_seconds"
	probeDurationMetricHelpConstant    = "Latency of successful mirror probes."
	statusLabelConstant                = "status"
	outcomeLabelConstant               = "outcome"
	writeTextfileErrorTemplateConstant = "unable to write metrics to %s: %w"
)

// Recorder holds a private registry for one build. A nil Recorder records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	resolutions   *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	probeFailures prometheus.Counter
	probeDuration prometheus.Histogram
}

// NewRecorder constructs a Recorder with its collectors registered.
func NewRecorder() *Recorder {
	recorder := &Recorder{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      resolutionsMetricNameConstant,
			Help:      resolutionsMetricHelpConstant,
		}, []string{statusLabelConstant}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      fetchAttemptsMetricNameConstant,
			Help:      fetchAttemptsMetricHelpConstant,
		}, []string{outcomeLabelConstant}),
		probeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceConstant,
			Name:      probeFailuresMetricNameConstant,
			Help:      probeFailuresMetricHelpConstant,
		}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceConstant,
			Name:      probeDurationMetricNameConstant,
			Help:      probeDurationMetricHelpConstant,
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	recorder.registry.MustRegister(recorder.resolutions, recorder.fetchAttempts, recorder.probeFailures, recorder.probeDuration)
	return recorder
}

// RecordResolution counts a resolved node.
func (recorder *Recorder) RecordResolution(status string) {
	if recorder == nil {
		return
	}
	recorder.resolutions.WithLabelValues(status).Inc()
}

// RecordFetch counts a fetch attempt.
func (recorder *Recorder) RecordFetch(outcome string) {
	if recorder == nil {
		return
	}
	recorder.fetchAttempts.WithLabelValues(outcome).Inc()
}

// ObserveProbe records a probe outcome.
func (recorder *Recorder) ObserveProbe(_ mirrors.Candidate, latency time.Duration, probeError error) {
	if recorder == nil {
		return
	}
	if probeError != nil {
		recorder.probeFailures.Inc()
		return
	}
	recorder.probeDuration.Observe(latency.Seconds())
}

// Gatherer exposes the registry.
func (recorder *Recorder) Gatherer() prometheus.Gatherer {
	if recorder == nil {
		return prometheus.NewRegistry()
	}
	return recorder.registry
}

// WriteTextfile writes the collected metrics atomically to the path.
func (recorder *Recorder) WriteTextfile(path string) error {
	if recorder == nil {
		return nil
	}
	if writeError := prometheus.WriteToTextfile(path, recorder.registry); writeError != nil {
		return fmt.Errorf(writeTextfileErrorTemplateConstant, path, writeError)
	}
	return nil
}
