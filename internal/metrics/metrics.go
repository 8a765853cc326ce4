// Package metrics provides Prometheus instrumentation for the image
// pipeline. It exposes counters for submission outcomes and describe
// results, gauges for hub connections and the describe backlog, and
// histograms for stage latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionsTotal counts submissions by terminal outcome:
	// "accepted", "rejected", "failed", "invalid", "banned".
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seesay_submissions_total",
		Help: "Total image submissions by terminal outcome",
	}, []string{"outcome"})

	// ModerationVerdictsTotal counts moderation verdicts: "clean",
	// "inappropriate", "error".
	ModerationVerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seesay_moderation_verdicts_total",
		Help: "Total moderation verdicts by result",
	}, []string{"verdict"})

	// DescriptionsTotal counts description stage runs: "ok", "error".
	DescriptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seesay_descriptions_total",
		Help: "Total description stage runs by result",
	}, []string{"result"})

	// SubmissionDuration records synchronous phase latency in seconds.
	SubmissionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "seesay_submission_duration_seconds",
		Help:    "Synchronous pipeline phase latency in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// HubConnections tracks the current number of notification hub clients.
	HubConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seesay_hub_connections",
		Help: "Current number of connected notification hub clients",
	})

	// DescribeBacklog tracks tickets waiting in the describer worker queue.
	DescribeBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seesay_describe_backlog",
		Help: "Description tickets waiting in the local worker queue",
	})
)

func init() {
	prometheus.MustRegister(
		SubmissionsTotal,
		ModerationVerdictsTotal,
		DescriptionsTotal,
		SubmissionDuration,
		HubConnections,
		DescribeBacklog,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
