// Package kafka publishes price-change events to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"repricer/pkg/api"
)

// DefaultTopic receives price-change events when no topic is configured.
const DefaultTopic = "pricing.price-changed"

// Publisher sends price-change events through a synchronous producer.
type Publisher struct {
	sync  sarama.SyncProducer
	topic string
}

// NewPublisher connects an idempotent producer to the given brokers.
func NewPublisher(brokers []string, topic string, cfg *sarama.Config) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1

	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewPublisherWithProducer(sync, topic), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(sync sarama.SyncProducer, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{sync: sync, topic: topic}
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishPriceChanged sends the event keyed by "<product>:<manufacturer>",
// so every change for one item lands on the same partition.
func (p *Publisher) PublishPriceChanged(ctx context.Context, event api.PriceChanged) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode price change: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Pair().Key()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte("price_changed")},
			{Key: []byte("run_id"), Value: []byte(event.RunID)},
		},
	}
	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish price change for %s: %w", event.Pair(), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}
