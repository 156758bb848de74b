// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/closemaster/closemaster/internal/models"
)

// Connect opens a Redis client and checks it with a PING.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Pusher is the slice of the Redis API the publisher needs.
type Pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RoundPublisher pushes settled rounds onto the historian queue. It
// satisfies game.RoundRecorder.
type RoundPublisher struct {
	rdb   Pusher
	queue string
}

func NewRoundPublisher(rdb Pusher, queue string) *RoundPublisher {
	return &RoundPublisher{rdb: rdb, queue: queue}
}

// RecordRound serializes rec to JSON and RPUSHes it. This only costs the
// game a quick network send; the historian does the heavy lifting.
func (p *RoundPublisher) RecordRound(ctx context.Context, rec models.RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}
