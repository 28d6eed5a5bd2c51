package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Event is one record to publish. Key picks the partition, Value is
// marshalled to JSON and a non-empty Type travels as EventTypeHeader.
type Event struct {
	Key   string
	Type  string
	Value any
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events to a single topic. It satisfies the events
// package's Publisher.
type Producer struct {
	w      writer
	logger *slog.Logger
}

// NewProducer builds a synchronous, hash-partitioned writer for topic.
// Events sharing a key (the operation name) land on the same partition.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchSize:              256,
			BatchTimeout:           20 * time.Millisecond,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// PublishBatch encodes every event before writing any, so a bad value
// fails the batch without a partial write.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := encodeMessages(events)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish failed", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing %d events: %w", len(msgs), err)
	}
	p.logger.Debug("published", "count", len(msgs))
	return nil
}

// Close flushes and releases the writer.
func (p *Producer) Close() error {
	return p.w.Close()
}

func encodeMessages(events []Event) ([]kafka.Message, error) {
	out := make([]kafka.Message, len(events))
	for i, ev := range events {
		body, err := json.Marshal(ev.Value)
		if err != nil {
			return nil, fmt.Errorf("event %d: marshaling value: %w", i, err)
		}
		out[i] = kafka.Message{Key: []byte(ev.Key), Value: body}
		if ev.Type != "" {
			out[i].Headers = []kafka.Header{{Key: EventTypeHeader, Value: []byte(ev.Type)}}
		}
	}
	return out, nil
}
