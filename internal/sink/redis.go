package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"counterdrone-sim/internal/broadcast"
)

const (
	defaultKeyPrefix  = "counterdrone"
	defaultAlertLimit = 500
	droneTTL          = time.Minute
)

// RedisClientInterface defines the Redis operations used by RedisObserver.
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisObserver caches the latest snapshot, each live drone and a capped
// list of recent alerts so other services can read current state without
// subscribing to the stream.
type RedisObserver struct {
	client     RedisClientInterface
	prefix     string
	alertLimit int64
}

// NewRedisObserver connects to addr and verifies the connection.
func NewRedisObserver(addr string) (*RedisObserver, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisObserverWithClient(client), nil
}

// NewRedisObserverWithClient wraps an existing client (useful for testing).
func NewRedisObserverWithClient(client RedisClientInterface) *RedisObserver {
	return &RedisObserver{client: client, prefix: defaultKeyPrefix, alertLimit: defaultAlertLimit}
}

// Name implements broadcast.Named.
func (r *RedisObserver) Name() string { return "redis" }

func (r *RedisObserver) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Send stores a snapshot or pushes an alert.
func (r *RedisObserver) Send(ctx context.Context, msg broadcast.Message) error {
	switch msg.Type {
	case broadcast.TypeDrones:
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		if err := r.client.Set(ctx, r.key("snapshot"), data, 0).Err(); err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		for _, d := range msg.Drones {
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("failed to marshal drone %s: %w", d.ID, err)
			}
			if err := r.client.Set(ctx, r.key("drone", d.ID), data, droneTTL).Err(); err != nil {
				return fmt.Errorf("failed to store drone %s: %w", d.ID, err)
			}
		}
	case broadcast.TypeAlert:
		data, err := json.Marshal(msg.Alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		key := r.key("alerts")
		if err := r.client.LPush(ctx, key, data).Err(); err != nil {
			return fmt.Errorf("failed to push alert: %w", err)
		}
		if err := r.client.LTrim(ctx, key, 0, r.alertLimit-1).Err(); err != nil {
			return fmt.Errorf("failed to trim alerts: %w", err)
		}
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisObserver) Close() error {
	return r.client.Close()
}
