package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/metrics"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "confidentialbid:events"

// RedisSink publishes JSON envelopes on a Redis pub/sub channel.
type RedisSink struct {
	Client  *redis.Client
	Channel string
}

func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{Client: client, Channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, e core.Event) error {
	b, err := Encode(e)
	if err != nil {
		return err
	}

	err = s.Client.Publish(ctx, s.Channel, b).Err()
	metrics.EventsPublishedTotal.WithLabelValues("redis", e.EventName(), metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to publish %s to redis: %w", e.EventName(), err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	if s.Client != nil {
		return s.Client.Close()
	}
	return nil
}
