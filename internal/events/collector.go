package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/metrics"
)

// Publisher writes a batch of events to the message bus.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorConfig sizes the collector's buffer and batches. Zero values take
// defaults.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector buffers computation events and publishes them in batches from a
// background goroutine. Track never blocks: when the buffer is full the event
// is dropped and counted.
type Collector struct {
	publisher Publisher
	cfg       CollectorConfig
	eventCh   chan ComputationEvent
	metrics   *metrics.Metrics
	logger    *slog.Logger
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewCollector creates a Collector. m may be nil.
func NewCollector(publisher Publisher, cfg CollectorConfig, m *metrics.Metrics) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		publisher: publisher,
		cfg:       cfg,
		eventCh:   make(chan ComputationEvent, cfg.BufferSize),
		metrics:   m,
		logger:    slog.Default().With("component", "event-collector"),
		done:      make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until Close is called or ctx is
// cancelled; either way buffered events are flushed first.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.cfg.BatchSize)
		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				return
			}
			if err := c.publisher.PublishBatch(ctx, batch); err != nil {
				c.logger.Error("failed to publish computation events", "count", len(batch), "error", err)
			}
			batch = batch[:0]
		}

		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					flush(context.Background())
					return
				}
				batch = append(batch, toKafkaEvent(event))
				if len(batch) >= c.cfg.BatchSize {
					flush(ctx)
				}
			case <-ticker.C:
				flush(ctx)
			case <-ctx.Done():
				drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.drainRemaining(drainCtx, batch)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("event collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
}

// Track enqueues an event. A nil Collector ignores it.
func (c *Collector) Track(event ComputationEvent) {
	if c == nil {
		return
	}
	if event.Type == "" {
		event.Type = EventComputation
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.metrics != nil {
			c.metrics.EventsDroppedTotal.Inc()
		}
		c.logger.Warn("computation event dropped (buffer full)", "operation", event.Operation)
	}
}

// Close stops accepting events and waits for the publish loop to flush. It
// must only be called after Start.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drainRemaining(ctx context.Context, batch []kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.publishFinal(ctx, batch)
				return
			}
			batch = append(batch, toKafkaEvent(event))
		default:
			c.publishFinal(ctx, batch)
			return
		}
	}
}

func (c *Collector) publishFinal(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish remaining events", "count", len(batch), "error", err)
	}
}

func toKafkaEvent(event ComputationEvent) kafka.Event {
	return kafka.Event{
		Key:   event.Operation,
		Type:  string(event.Type),
		Value: event,
	}
}

// LocalPublisher feeds events straight into an Aggregator. It stands in for
// Kafka when no brokers are configured.
type LocalPublisher struct {
	Aggregator *Aggregator
}

func (p LocalPublisher) PublishBatch(ctx context.Context, evs []kafka.Event) error {
	for _, e := range evs {
		if event, ok := e.Value.(ComputationEvent); ok {
			p.Aggregator.Record(event)
		}
	}
	return nil
}
