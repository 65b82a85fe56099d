// Package services – Prometheus instrumentation for the homework pipeline.
//
// Counters are labeled by terminal outcome only, keeping cardinality fixed.
// HTTP-level metrics live in the ops endpoint; these cover the business flow.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// homeworkDetected counts candidates that entered the pipeline.
	homeworkDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "homework_candidates_total",
		Help: "Total number of homework candidates detected.",
	})

	// homeworkConfirmed counts persisted items by how they were resolved.
	homeworkConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homework_confirmed_total",
			Help: "Total number of confirmed homework items.",
		},
		[]string{"resolution"}, // auto | choice
	)

	// homeworkRejected counts candidates discarded before persistence.
	homeworkRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homework_rejected_total",
			Help: "Total number of homework candidates rejected.",
		},
		[]string{"reason"}, // duplicate | unknown_subject | stale_handle
	)
)

func init() {
	prometheus.MustRegister(homeworkDetected, homeworkConfirmed, homeworkRejected)
}
