package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"rollguard/internal/clusters/models"
)

// MessagePublisher sends keyed messages to the broker.
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// ClusterPublisher publishes cluster events as JSON keyed by address hash.
// Successive flags for one address stay ordered on one partition.
type ClusterPublisher struct {
	publisher MessagePublisher
}

func NewClusterPublisher(p MessagePublisher) *ClusterPublisher {
	return &ClusterPublisher{publisher: p}
}

func (p *ClusterPublisher) PublishCluster(ctx context.Context, event models.ClusterEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode cluster event: %w", err)
	}
	return p.publisher.Publish(ctx, event.AddressHash, value)
}
