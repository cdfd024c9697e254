package outbox

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	written []kafka.Message
	closed  bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.written = append(w.written, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaProducerStampsTopicOnEachRecord(t *testing.T) {
	w := &recordingWriter{}
	producer := newKafkaProducer(w)

	require.NoError(t, producer.WriteMessages(context.Background(), TopicOffsetEvents,
		kafka.Message{Key: []byte("user-1"), Value: []byte("a")},
		kafka.Message{Key: []byte("user-2"), Value: []byte("b")},
	))

	require.Len(t, w.written, 2)
	for _, msg := range w.written {
		assert.Equal(t, TopicOffsetEvents, msg.Topic)
	}
	assert.Equal(t, []byte("user-2"), w.written[1].Key)

	require.NoError(t, producer.Close())
	assert.True(t, w.closed)
}

func TestKafkaProducerRejectsUnroutedTopic(t *testing.T) {
	w := &recordingWriter{}
	producer := newKafkaProducer(w)

	err := producer.WriteMessages(context.Background(), "carbon_unknown_events", kafka.Message{Value: []byte("x")})
	require.ErrorContains(t, err, `no route publishes to topic "carbon_unknown_events"`)
	assert.Empty(t, w.written)
}
