// Package kafka streams simulator ticks to a Kafka topic, one message per quote.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/marketpulse/internal/domain"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "market-ticks"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a kafka-go writer that balances by bytes and creates the topic on demand.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// TickPublisher keys each quote by symbol so all updates for a symbol share a partition.
type TickPublisher struct {
	writer messageWriter
	clock  clockwork.Clock
}

func NewTickPublisher(writer messageWriter, clock clockwork.Clock) *TickPublisher {
	return &TickPublisher{writer: writer, clock: clock}
}

func (p *TickPublisher) Name() string { return "kafka" }

func (p *TickPublisher) PublishTick(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	now := p.clock.Now()
	msgs := make([]kafka.Message, 0, len(quotes))
	for _, q := range quotes {
		payload, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to encode quote %s: %w", q.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(q.Symbol),
			Value: payload,
			Time:  now,
			Headers: []kafka.Header{
				{Key: "content-type", Value: []byte("application/json")},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d tick messages: %w", len(msgs), err)
	}
	return nil
}

func (p *TickPublisher) Close() error {
	return p.writer.Close()
}
