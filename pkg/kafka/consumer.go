// Package kafka carries computation events over segmentio/kafka-go. The
// producer side batches JSON events with an event-type header; the consumer
// side hands each record to a callback and commits once the callback has
// either succeeded or exhausted its retries.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// EventTypeHeader names the message header carrying Event.Type.
const EventTypeHeader = "event-type"

// Message is what a MessageHandler sees of a record.
type Message struct {
	Key       []byte
	Value     []byte
	EventType string
	Partition int
	Offset    int64
}

// MessageHandler processes one record. A non-nil error triggers a retry.
type MessageHandler func(ctx context.Context, msg Message) error

// reader is the slice of *kafka.Reader the consume loop needs.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerStats counts what the loop has done since it started.
type ConsumerStats struct {
	Handled   int64
	Abandoned int64
	FetchErrs int64
}

// Consumer runs a MessageHandler over a topic in a consumer group.
type Consumer struct {
	r       reader
	handle  MessageHandler
	retry   resilience.RetryConfig
	backoff time.Duration
	logger  *slog.Logger

	handled   atomic.Int64
	abandoned atomic.Int64
	fetchErrs atomic.Int64
}

// NewConsumer joins cfg.ConsumerGroup on topic. New groups start from the
// latest offset so a fresh deployment does not replay history.
func NewConsumer(cfg config.KafkaConfig, topic string, handle MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handle)
}

func newConsumer(r reader, topic string, handle MessageHandler) *Consumer {
	return &Consumer{
		r:      r,
		handle: handle,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
		},
		backoff: time.Second,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader. A record
// whose handler keeps failing is logged and committed so one bad record
// cannot wedge the partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped", "handled", c.handled.Load(), "abandoned", c.abandoned.Load())

	for {
		rec, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.r.Close()
			}
			c.fetchErrs.Add(1)
			c.logger.Error("fetch failed", "error", err)
			if !sleep(ctx, c.backoff) {
				return c.r.Close()
			}
			continue
		}

		msg := toMessage(rec)
		err = resilience.Retry(ctx, "kafka-handler", c.retry, func(ctx context.Context) error {
			return c.handle(ctx, msg)
		})
		switch {
		case err == nil:
			c.handled.Add(1)
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			// Uncommitted; the group will redeliver it.
			return c.r.Close()
		default:
			c.abandoned.Add(1)
			c.logger.Error("abandoning message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}

		if err := c.r.CommitMessages(ctx, rec); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Stats returns a snapshot of the loop counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled:   c.handled.Load(),
		Abandoned: c.abandoned.Load(),
		FetchErrs: c.fetchErrs.Load(),
	}
}

func toMessage(rec kafka.Message) Message {
	msg := Message{Key: rec.Key, Value: rec.Value, Partition: rec.Partition, Offset: rec.Offset}
	for _, h := range rec.Headers {
		if h.Key == EventTypeHeader {
			msg.EventType = string(h.Value)
			break
		}
	}
	return msg
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// DecodeJSON unmarshals a record value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}
