package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roomlink/internal/core/domain"
)

// Redis keeps each room's keys in a hash and fans out changes over
// pub/sub, so emulator instances on different hosts see one store.
type Redis struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

// NewRedisClient creates a Redis client with connection pooling and
// verifies connectivity before returning it.
func NewRedisClient(address, password string, db, poolSize int, log *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log != nil {
		log.Infow("connected to Redis", "address", address, "db", db, "pool_size", poolSize)
	}
	return client, nil
}

func NewRedis(client *redis.Client, log *zap.SugaredLogger) *Redis {
	return &Redis{client: client, log: log}
}

func hashKey(room domain.RoomID) string    { return "roomlink:store:" + string(room) }
func channelKey(room domain.RoomID) string { return "roomlink:store:changes:" + string(room) }

func (r *Redis) Set(ctx context.Context, room domain.RoomID, key string, value json.RawMessage) error {
	if err := r.client.HSet(ctx, hashKey(room), key, string(value)).Err(); err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	msg, err := json.Marshal(Change{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if err := r.client.Publish(ctx, channelKey(room), msg).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, room domain.RoomID, key string) (json.RawMessage, error) {
	val, err := r.client.HGet(ctx, hashKey(room), key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return json.RawMessage(val), nil
}

func (r *Redis) Watch(ctx context.Context, room domain.RoomID, fn func(Change)) (func() error, error) {
	pubsub := r.client.Subscribe(ctx, channelKey(room))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", room, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				r.log.Warnw("undecodable store change", "room", room, "error", err)
				continue
			}
			fn(change)
		}
	}()

	return pubsub.Close, nil
}

func (r *Redis) Close() error { return r.client.Close() }
