package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"rollguard/pkg/platform/circuit"
	"rollguard/pkg/platform/sentinel"
)

// Producer is the part of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher writes keyed messages to one topic behind a circuit breaker.
// While the breaker is open, Publish fails fast with sentinel.ErrUnavailable
// instead of waiting on an unreachable broker.
type Publisher struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type PublisherOption func(*Publisher)

func WithBreaker(b *circuit.Breaker) PublisherOption {
	return func(p *Publisher) {
		if b != nil {
			p.breaker = b
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(producer Producer, topic string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("kafka:" + topic),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, key string, value []byte) error {
	if !p.breaker.Allow() {
		return fmt.Errorf("publish to %s: circuit open: %w", p.topic, sentinel.ErrUnavailable)
	}
	record := &kgo.Record{Topic: p.topic, Key: []byte(key), Value: value}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "event publisher circuit opened", "topic", p.topic, "error", err)
		}
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "event publisher circuit closed", "topic", p.topic)
	}
	return nil
}

// BreakerState exposes the breaker position for readiness reporting.
func (p *Publisher) BreakerState() circuit.State {
	return p.breaker.State()
}
