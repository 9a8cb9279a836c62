// Package events publishes ingest notifications on Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelIngested carries one message per successfully stored opportunity.
const ChannelIngested = "EVENT_OPPORTUNITY_INGESTED"

// Ingested is the payload published on ChannelIngested.
type Ingested struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Created   bool      `json:"created"`
	Match     string    `json:"match"`
	Category  string    `json:"category"`
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends events to Redis.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher wraps a connected client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// PublishIngested publishes e on ChannelIngested.
func (p *Publisher) PublishIngested(ctx context.Context, e Ingested) error {
	e.Type = ChannelIngested
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, ChannelIngested, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelIngested, err)
	}
	return nil
}
