package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chotrivia"

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Trivia sessions started on request.",
	})

	SessionsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_recovered_total",
		Help:      "Trivia sessions resumed from a snapshot at startup.",
	})

	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_ended_total",
		Help:      "Trivia sessions that ended, by reason.",
	}, []string{"reason"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Trivia sessions currently driven by this process.",
	})

	QuestionsAsked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "questions_asked_total",
		Help:      "Questions broadcast to a channel.",
	})

	QuestionsOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "questions_outcome_total",
		Help:      "Questions closed, by outcome (answered or timeout).",
	}, []string{"outcome"})

	SnapshotSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_save_failures_total",
		Help:      "Session snapshots that could not be persisted.",
	})
)
