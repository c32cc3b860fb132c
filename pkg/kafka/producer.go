package kafka

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"github.com/siqueiraa/KafSnap/pkg/config"
	"github.com/siqueiraa/KafSnap/pkg/snapshot"
)

const (
	batchTimeoutMillis = 100 // Batch timeout in milliseconds
	publishTimeoutSecs = 10  // Write timeout in seconds
)

// jsonFast is our high-performance JSON API.
var jsonFast = jsoniter.ConfigFastest

// Producer wraps a kafka.Writer for JSON event publication.
type Producer struct {
	ctx    context.Context
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer.
func NewProducer(ctx context.Context, cfg config.KafkaConfig) (*Producer, error) {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: batchTimeoutMillis * time.Millisecond,
		// RequiredAcks is an int, so cast the constant.
		RequiredAcks: int(kafka.RequireAll),
	})

	return &Producer{ctx: ctx, writer: w}, nil
}

// Publish sends a single JSON-encoded message.
func (p *Producer) Publish(topic string, key []byte, value map[string]any) error {
	payload, err := jsonFast.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(p.ctx, publishTimeoutSecs*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error { return p.writer.Close() }

// SnapshotNotifier publishes a completion event for every written
// snapshot, so downstream tooling can react (fetch the file, alert,
// archive).
type SnapshotNotifier struct {
	producer *Producer
	topic    string
}

// NewSnapshotNotifier wraps a producer targeting the events topic.
func NewSnapshotNotifier(producer *Producer, topic string) *SnapshotNotifier {
	return &SnapshotNotifier{producer: producer, topic: topic}
}

// SnapshotWritten implements snapshot.Notifier.
func (n *SnapshotNotifier) SnapshotWritten(event snapshot.Event) error {
	value := map[string]any{
		"file":      event.File,
		"messages":  event.Messages,
		"channels":  event.Channels,
		"triggered": event.Triggered.Format(time.RFC3339Nano),
	}
	return n.producer.Publish(n.topic, []byte(event.File), value)
}
