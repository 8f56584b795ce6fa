package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"rollguard/internal/dedupe/models"
)

// MessagePublisher sends keyed messages to the broker.
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// FlagPublisher publishes flag events as JSON keyed by flag id, so every
// event of one flag lands on the same partition.
type FlagPublisher struct {
	publisher MessagePublisher
}

func NewFlagPublisher(p MessagePublisher) *FlagPublisher {
	return &FlagPublisher{publisher: p}
}

func (p *FlagPublisher) PublishFlag(ctx context.Context, event models.FlagEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode flag event: %w", err)
	}
	return p.publisher.Publish(ctx, event.FlagID, value)
}
