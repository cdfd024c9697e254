package outbox

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// eventOutcome labels what happened to an outbox row on a dispatch attempt.
type eventOutcome string

const (
	outcomeDelivered    eventOutcome = "delivered"
	outcomeFailed       eventOutcome = "failed"
	outcomeDeadLettered eventOutcome = "dead_lettered"
)

// dlqAction labels a transition the DLQ manager applied to an entry.
type dlqAction string

const (
	actionRequeued       dlqAction = "requeued"
	actionRetryScheduled dlqAction = "retry_scheduled"
	actionQuarantined    dlqAction = "quarantined"
)

var (
	outboxEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbonledger",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events by topic and dispatch outcome.",
	}, []string{"topic", "outcome"})

	outboxBatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "carbonledger",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of non-empty dispatch batches, claim through mark.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carbonledger",
		Subsystem: "dlq",
		Name:      "transitions_total",
		Help:      "DLQ entries handled by the manager, by resulting action.",
	}, []string{"topic", "event_type", "action"})

	dlqEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "carbonledger",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Rows in outbox_dlq, split into pending and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(outboxEvents, outboxBatchSeconds, dlqTransitions, dlqEntries)
}

func countOutcome(outcome eventOutcome, messages ...Message) {
	for _, msg := range messages {
		outboxEvents.WithLabelValues(msg.Topic, string(outcome)).Inc()
	}
}

func countTransition(entry dlqEntry, action dlqAction) {
	dlqTransitions.WithLabelValues(entry.Topic, entry.EventType, string(action)).Inc()
}

// refreshDLQGauge sets the pending and quarantined gauges from one scan of outbox_dlq.
func (m *DLQManager) refreshDLQGauge(ctx context.Context) {
	var pending, quarantined int
	err := m.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
                COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
           FROM outbox_dlq`,
	).Scan(&pending, &quarantined)
	if err != nil {
		m.logger.Debug().Err(err).Msg("dlq gauge not refreshed")
		return
	}
	dlqEntries.WithLabelValues("pending").Set(float64(pending))
	dlqEntries.WithLabelValues("quarantined").Set(float64(quarantined))
}
