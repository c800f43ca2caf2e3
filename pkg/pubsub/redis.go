package pubsub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Bus backed by native Redis pub/sub push semantics — no
// polling fallback needed since Redis delivers directly, unlike the
// Postgres backend's NOTIFY/LISTEN-with-table-fallback design.
type Redis struct {
	client *redis.Client
}

// NewRedis builds a Redis bus from a redis:// connection URL.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("pubsub: parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("pubsub: redis publish %s: %w", channel, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, channel string, handler Handler, stop <-chan struct{}) error {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("pubsub: redis subscribe %s: %w", channel, err)
	}

	ch := ps.Channel()
	go func() {
		defer ps.Close()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
