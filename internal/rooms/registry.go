// Package rooms tracks which connections are subscribed to which
// broadcast rooms. Membership lives in Redis so multiple realtime nodes
// can share it; it is read at broadcast time, never cached.
package rooms

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(redisURL string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisRegistry{client: client}, nil
}

// NewRedisRegistryWithClient creates a registry from an existing client.
func NewRedisRegistryWithClient(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func roomKey(room string) string {
	return "room:" + room
}

func connKey(connID string) string {
	return "conn:" + connID + ":rooms"
}

// Join subscribes a connection to a room.
func (r *RedisRegistry) Join(ctx context.Context, connID, room string) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, roomKey(room), connID)
	pipe.SAdd(ctx, connKey(connID), room)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("join room %s: %w", room, err)
	}
	return nil
}

// Leave removes a connection from a room.
func (r *RedisRegistry) Leave(ctx context.Context, connID, room string) error {
	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, roomKey(room), connID)
	pipe.SRem(ctx, connKey(connID), room)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leave room %s: %w", room, err)
	}
	return nil
}

// LeaveAll removes a connection from every room it joined. Called on
// disconnect.
func (r *RedisRegistry) LeaveAll(ctx context.Context, connID string) error {
	rooms, err := r.client.SMembers(ctx, connKey(connID)).Result()
	if err != nil {
		return fmt.Errorf("list rooms for %s: %w", connID, err)
	}

	pipe := r.client.TxPipeline()
	for _, room := range rooms {
		pipe.SRem(ctx, roomKey(room), connID)
	}
	pipe.Del(ctx, connKey(connID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leave all rooms for %s: %w", connID, err)
	}
	return nil
}

// Members returns the connection ids currently subscribed to a room.
func (r *RedisRegistry) Members(ctx context.Context, room string) ([]string, error) {
	members, err := r.client.SMembers(ctx, roomKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("room members %s: %w", room, err)
	}
	return members, nil
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
