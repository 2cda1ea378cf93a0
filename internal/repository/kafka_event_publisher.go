package repository

import (
	"context"
	"fmt"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	pkgkafka "Tradeflow/pkg/kafka"
)

// producer is the part of pkgkafka.Producer the publisher needs.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaEventPublisher writes engine events to a topic keyed by trading date,
// so one day's events stay on one partition and keep their order.
type KafkaEventPublisher struct {
	producer producer
	topic    string
}

func NewKafkaEventPublisher(p *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, topic: topic}
}

func eventKey(e models.Event) []byte {
	if e.TradingDate == "" {
		return nil
	}
	return []byte(e.TradingDate)
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, e models.Event) error {
	if err := p.producer.Publish(ctx, p.topic, eventKey(e), e); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaEventPublisher) PublishBatch(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, e := range events {
		msgs[i] = pkgkafka.Message{Key: eventKey(e), Value: e}
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish %d events: %w", len(events), err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.Publisher = (*KafkaEventPublisher)(nil)
