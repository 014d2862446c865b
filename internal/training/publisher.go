package training

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives ModelPublished events.
const DefaultTopic = "model.published"

// ModelPublished announces a version that went live.
type ModelPublished struct {
	Model        string             `json:"model"`
	Version      string             `json:"version"`
	Metrics      map[string]float64 `json:"metrics"`
	ArtifactPath string             `json:"artifact_path"`
	PublishedAt  time.Time          `json:"published_at"`
	RunID        string             `json:"run_id"`
}

// Publisher emits publication events.
type Publisher interface {
	Publish(ctx context.Context, event ModelPublished) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ModelPublished) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by model name, so
// events of one model stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher writes events to topic, keyed by model name.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 5 * time.Second,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event ModelPublished) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Model),
		Value: data,
		Time:  event.PublishedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("model_published")},
			{Key: "run_id", Value: []byte(event.RunID)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
