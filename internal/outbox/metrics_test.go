package outbox

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"example.com/carbonledger/internal/events"
)

func TestCountOutcomeLabelsEachMessageByTopic(t *testing.T) {
	delivered := func(topic string) float64 {
		return testutil.ToFloat64(outboxEvents.WithLabelValues(topic, string(outcomeDelivered)))
	}
	activity, offset := delivered(TopicActivityEvents), delivered(TopicOffsetEvents)

	countOutcome(outcomeDelivered,
		Message{Topic: TopicActivityEvents},
		Message{Topic: TopicActivityEvents},
		Message{Topic: TopicOffsetEvents},
	)

	assert.Equal(t, activity+2, delivered(TopicActivityEvents))
	assert.Equal(t, offset+1, delivered(TopicOffsetEvents))
}

func TestCountTransitionLabelsAction(t *testing.T) {
	entry := dlqEntry{Topic: TopicOffsetEvents, EventType: events.TypeOffsetPurchased}
	quarantined := dlqTransitions.WithLabelValues(entry.Topic, entry.EventType, string(actionQuarantined))
	requeued := dlqTransitions.WithLabelValues(entry.Topic, entry.EventType, string(actionRequeued))
	before, beforeRequeued := testutil.ToFloat64(quarantined), testutil.ToFloat64(requeued)

	countTransition(entry, actionQuarantined)

	assert.Equal(t, before+1, testutil.ToFloat64(quarantined))
	assert.Equal(t, beforeRequeued, testutil.ToFloat64(requeued))
}
