package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"learnizone-backend/internal/models"
)

// Publisher pushes real-time events to every connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, msg models.WSMessage)
}

// UserChannel is the Redis pub/sub channel the WebSocket hub subscribes to
// for a user.
func UserChannel(userID string) string {
	return "user_updates:" + userID
}

// RedisPublisher sends a WebSocket update via Redis pub/sub
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("publish %s to %s: %v", msg.Type, userID, err)
		return
	}
	if err := p.client.Publish(ctx, UserChannel(userID), string(data)).Err(); err != nil {
		log.Printf("publish %s to %s: %v", msg.Type, userID, err)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, models.WSMessage) {}
