package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients splits command traffic (job queue, refresh tokens, rate
// limits, change publishing) from long-lived pub/sub subscriptions, which
// each hold a connection for as long as a socket or watch is open.
type RedisClients struct {
	Commands *redis.Client
	PubSub   *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	commands := redis.NewClient(opt)
	if err := commands.Ping(ctx).Err(); err != nil {
		commands.Close()
		return nil, fmt.Errorf("failed to ping Redis (commands): %w", err)
	}

	pubsubOpt := *opt
	pubsubOpt.PoolSize = 50
	pubsub := redis.NewClient(&pubsubOpt)
	if err := pubsub.Ping(ctx).Err(); err != nil {
		commands.Close()
		pubsub.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{Commands: commands, PubSub: pubsub}, nil
}

// Close is safe on a nil receiver so callers running without Redis can
// defer it unconditionally.
func (r *RedisClients) Close() {
	if r == nil {
		return
	}
	r.Commands.Close()
	r.PubSub.Close()
}
