package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/tenantbook/libs/kafkax"
)

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event to the topic named after its type unless
// topics overrides it, keyed by tenant so one tenant's events stay ordered.
type KafkaPublisher struct {
	writer  messageWriter
	topics  map[string]string
	logger  *slog.Logger
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topics map[string]string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		topics: topics,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg := kafka.Message{
		Topic:   p.topicFor(e.EventType),
		Key:     []byte(e.AggregateID),
		Value:   e.Payload,
		Headers: kafkax.EventMeta{EventID: e.EventID, EventType: e.EventType}.Headers(),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "event published", "event_type", e.EventType, "event_id", e.EventID)
	return nil
}

func (p *KafkaPublisher) topicFor(eventType string) string {
	if t := p.topics[eventType]; t != "" {
		return t
	}
	return eventType
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
