package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OperatorFoundation/nahoftu4i/observability"
	"github.com/OperatorFoundation/nahoftu4i/session"
	"github.com/OperatorFoundation/nahoftu4i/stream"
)

// Publisher publishes engine snapshots to a Redis channel so observers in
// other processes can follow the session.
type Publisher struct {
	client   *redis.Client
	channel  string
	observer observability.Observer
}

// NewPublisher creates a Publisher on channel. An empty channel uses
// DefaultChannel.
func NewPublisher(client *redis.Client, channel string, observer observability.Observer) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Publisher{client: client, channel: channel, observer: observer}
}

// Publish sends one snapshot.
func (p *Publisher) Publish(ctx context.Context, snap session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}

// Run publishes every snapshot from sub until ctx is cancelled or sub
// closes. Failed publishes are reported and skipped.
func (p *Publisher) Run(ctx context.Context, sub *stream.Subscription[session.Snapshot]) error {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := p.Publish(ctx, snap); err != nil {
				p.observer.OnEvent(ctx, observability.Event{
					Type:      EventPublishFailed,
					Level:     observability.LevelWarning,
					Timestamp: time.Now(),
					Source:    "notify",
					Data: map[string]any{
						"channel": p.channel,
						"error":   err.Error(),
					},
				})
			}
		}
	}
}
