package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaWriter is the subset of *kafka.Writer the producer drives.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes outbox records through one shared writer. Each
// record carries its own topic, and only topics with a catalog route are
// accepted. Records are hashed onto partitions by key so a user's events
// stay ordered.
type KafkaProducer struct {
	writer kafkaWriter
	topics map[string]struct{}
}

// NewKafkaProducer dials brokers lazily on first write. batchTimeout bounds how
// long a partial batch waits; zero keeps the kafka-go default of one second.
func NewKafkaProducer(brokers []string, batchTimeout time.Duration) *KafkaProducer {
	return newKafkaProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: batchTimeout,
	})
}

func newKafkaProducer(w kafkaWriter) *KafkaProducer {
	topics := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		topics[r.Topic] = struct{}{}
	}
	return &KafkaProducer{writer: w, topics: topics}
}

// WriteMessages publishes msgs to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	if _, ok := p.topics[topic]; !ok {
		return fmt.Errorf("outbox: no route publishes to topic %q", topic)
	}
	stamped := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		msg.Topic = topic
		stamped[i] = msg
	}
	return p.writer.WriteMessages(ctx, stamped...)
}

// Close flushes pending batches and releases broker connections.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
