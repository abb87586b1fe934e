package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes each record as JSON on a pub/sub channel.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// DialRedis connects to url and verifies the connection with a ping.
func DialRedis(ctx context.Context, url, channel string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("feed: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("feed: connect to redis: %w", err)
	}
	return NewRedisSink(client, channel), nil
}

func (s *RedisSink) Name() string { return "redis" }

// Write publishes rec on the configured channel.
func (s *RedisSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("feed: encode record: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("feed: publish to %s: %w", s.channel, err)
	}
	return nil
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
