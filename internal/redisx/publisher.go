package redisx

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Publisher pushes payloads onto a redis channel. It backs the notification
// fan-out; every API instance subscribed to the channel relays the payload to
// its local sessions.
type Publisher struct {
	R       *redis.Client
	Channel string
}

func (p *Publisher) Push(ctx context.Context, payload []byte) error {
	return p.R.Publish(ctx, p.Channel, payload).Err()
}
