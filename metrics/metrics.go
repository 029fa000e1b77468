// Package metrics khai báo các metric Prometheus của backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reels"

var (
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of thread generations by outcome",
		},
		[]string{"outcome"},
	)

	ItemTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_transitions_total",
			Help:      "Feed item state transitions",
		},
		[]string{"state", "reason"},
	)

	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Video task status polls by provider state",
		},
		[]string{"state"},
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of video ingestion (download + upload)",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	NarrationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narration_failures_total",
			Help:      "Units whose narration could not be produced",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "player_sessions_active",
			Help:      "Player sessions currently held in memory",
		},
	)

	QuizAnswers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quiz_answers_total",
			Help:      "Quiz answers by result",
		},
		[]string{"result"},
	)
)

func RecordTransition(state, reason string) {
	ItemTransitions.WithLabelValues(state, reason).Inc()
}

func RecordPoll(state string) {
	if state == "" {
		state = "unknown"
	}
	PollAttempts.WithLabelValues(state).Inc()
}

func RecordIngest(status string, seconds float64) {
	IngestDuration.WithLabelValues(status).Observe(seconds)
}

func RecordAnswer(result string) {
	QuizAnswers.WithLabelValues(result).Inc()
}
