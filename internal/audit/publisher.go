package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	pstrings "tqhub/pkg/platform/strings"
)

// KafkaPublisher ships session events to a Kafka topic, keyed by tenant so
// one tenant's events stay ordered.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// KafkaConfig holds publisher configuration.
type KafkaConfig struct {
	Brokers         string
	Topic           string
	DeliveryTimeout time.Duration
}

// NewKafkaPublisher creates a publisher over the given brokers.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(pstrings.DedupeAndTrim(strings.Split(cfg.Brokers, ","))...),
		kgo.RequiredAcks(kgo.LeaderAck()),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &KafkaPublisher{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Emit publishes the event asynchronously. Delivery failures are logged, not
// returned: session state must never depend on the audit pipeline.
func (p *KafkaPublisher) Emit(ctx context.Context, event Event) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("audit publisher is closed")
	}
	p.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.Itoa(event.TenantID)),
		Value: value,
	}

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("audit delivery failed",
				"topic", r.Topic,
				"action", event.Action,
				"error", err,
			)
		}
	})
	return nil
}

// Flush waits for buffered events to be delivered.
func (p *KafkaPublisher) Flush(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.client.Flush(ctx)
}

// Close flushes outstanding events and shuts the client down.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil && p.logger != nil {
		p.logger.Warn("audit publisher closed with undelivered events", "error", err)
	}
	p.client.Close()
	return nil
}

// NoopPublisher discards all events, for when audit publishing is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Emit(context.Context, Event) error { return nil }

// MemoryPublisher records events in memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event{}, p.events...)
}
