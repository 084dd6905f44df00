package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tracklight-systems/tracklight/internal/models"
)

// DefaultKey is the Redis list key unsent batches are stored under.
const DefaultKey = "tracklight:spool"

// RedisSpool persists unsent batch envelopes in a Redis list.
type RedisSpool struct {
	client *redis.Client
	key    string
}

// NewRedisSpool connects to Redis and verifies the connection.
func NewRedisSpool(redisURL, key string) (*RedisSpool, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if key == "" {
		key = DefaultKey
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisSpool{client: client, key: key}, nil
}

// Push appends the envelope to the spool list.
func (s *RedisSpool) Push(ctx context.Context, envelope *models.BatchEnvelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("spool push: %w", err)
	}
	return nil
}

// Drain removes and returns all spooled envelopes in insertion order.
// Entries that fail to decode are dropped rather than blocking the drain.
func (s *RedisSpool) Drain(ctx context.Context) ([]*models.BatchEnvelope, error) {
	var envelopes []*models.BatchEnvelope

	for {
		data, err := s.client.LPop(ctx, s.key).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return envelopes, fmt.Errorf("spool drain: %w", err)
		}

		var envelope models.BatchEnvelope
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			continue
		}
		envelopes = append(envelopes, &envelope)
	}

	return envelopes, nil
}

// Close releases the Redis connection.
func (s *RedisSpool) Close() error {
	return s.client.Close()
}
