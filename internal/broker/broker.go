// Package broker defines the pub/sub port (C3) and its Redis
// implementation, grounded on
// original_source/poiesis/core/adaptors/message_broker/redis_adaptor.py
// (RedisMessageBroker: publish via redis.Publish, subscribe via
// pubsub.Subscribe + a receive loop) and completing the teacher's own
// not-yet-wired logs/redis.go placeholder.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// Status is the terminal status a stage reports on its task channel.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Message is the wire format published on a task's channel (spec.md §6).
// Kind carries the poiesiserr.Kind of an ERROR status across the process
// boundary, so a subscriber that only sees the channel message (not the
// original Go error) can still tell a clean executor non-zero exit apart
// from a platform failure.
type Message struct {
	Text      string          `json:"message"`
	Status    Status          `json:"status"`
	Kind      poiesiserr.Kind `json:"kind,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Port is the pub/sub contract: one channel per task, at-least-once
// delivery within a subscriber session (spec.md §4.3).
type Port interface {
	Publish(ctx context.Context, channel string, msg Message) error
	// Next blocks for exactly one message on channel, or returns an ERROR
	// Message if the subscription disconnects mid-wait.
	Next(ctx context.Context, channel string) (Message, error)
	Close() error
}

// RedisPort implements Port over github.com/redis/go-redis/v9.
type RedisPort struct {
	client *redis.Client
}

func NewRedisPort(host, port, password string) *RedisPort {
	return &RedisPort{
		client: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", host, port),
			Password: password,
		}),
	}
}

func (r *RedisPort) Publish(ctx context.Context, channel string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.PlatformError, "marshal broker message", err)
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return poiesiserr.Wrap(poiesiserr.PlatformError, "publish broker message", err)
	}
	return nil
}

// Next subscribes, pulls exactly one message, and unsubscribes — the
// "subscribe(<taskId>) and pull exactly one message" procedure shared by
// Tif/Texam/Tof submission (spec.md §4.8).
func (r *RedisPort) Next(ctx context.Context, channel string) (Message, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	raw, err := pubsub.ReceiveMessage(ctx)
	if err != nil {
		return Message{Status: StatusError, Text: "broker disconnected while waiting", Timestamp: time.Now().UTC()}, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
		return Message{}, poiesiserr.Wrap(poiesiserr.PlatformError, "decode broker message", err)
	}
	return msg, nil
}

func (r *RedisPort) Close() error {
	return r.client.Close()
}
