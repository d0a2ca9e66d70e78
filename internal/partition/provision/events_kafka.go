package provision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

const eventTypeHeader = "event_type"

// KafkaPublisher writes lifecycle events as JSON to a single topic, keyed by
// partition name so events for one partition stay ordered.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher wraps a franz-go client.
func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

// Publish produces the event and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Partition),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: eventTypeHeader, Value: []byte(event.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s event: %w", event.Type, err)
	}
	return nil
}
