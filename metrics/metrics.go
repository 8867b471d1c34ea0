// Package metrics holds the Prometheus collectors for the front desk. They are
// registered on the default registry and served by promhttp from the serve command.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal counts caller questions by how they were answered:
	// static, learned or escalated.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frontdesk",
		Name:      "resolutions_total",
		Help:      "Caller questions handled, labelled by answer source.",
	}, []string{"source"})

	LookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frontdesk",
		Name:      "answer_lookups_total",
		Help:      "Learned-answer lookups, labelled hit or miss.",
	}, []string{"result"})

	AnswersLearnedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "frontdesk",
		Name:      "answers_learned_total",
		Help:      "Learned-answer entries appended from resolved help requests.",
	})

	// TransitionsTotal counts help request state changes by target status.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frontdesk",
		Name:      "help_request_transitions_total",
		Help:      "Help request lifecycle transitions, labelled by resulting status.",
	}, []string{"status"})

	RejectedTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "frontdesk",
		Name:      "help_request_rejected_transitions_total",
		Help:      "Transitions attempted on terminal help requests.",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "frontdesk",
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of one expiry sweep pass.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	ReconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "frontdesk",
		Name:      "reconciled_answers_total",
		Help:      "Resolved help requests whose answer was learned by reconciliation.",
	})

	OutboxDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frontdesk",
		Name:      "outbox_deliveries_total",
		Help:      "Outbox delivery attempts, labelled by topic and result.",
	}, []string{"topic", "result"})
)
