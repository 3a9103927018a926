// Package redis broadcasts live transcripts over redis pub/sub, one
// channel per session.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TranscriptChannelPrefix is the pub/sub channel prefix live transcripts
// are broadcast on, one channel per session id.
const TranscriptChannelPrefix = "astra:call:transcript"

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RedisService struct {
	client *redis.Client
}

func NewRedisService(config *RedisConfig) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisService{
		client: client,
	}, nil
}

// TranscriptChannel returns the pub/sub channel for a session's live
// transcript.
func TranscriptChannel(sessionID string) string {
	return fmt.Sprintf("%s:%s", TranscriptChannelPrefix, sessionID)
}

// Publish publishes a message to a Redis channel
func (r *RedisService) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Close releases the underlying client.
func (r *RedisService) Close() error {
	return r.client.Close()
}
