package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/logger"
)

// envelope tags a message with the instance that produced it so an instance
// does not re-deliver its own broadcasts.
type envelope struct {
	Origin  string          `json:"origin"`
	Message json.RawMessage `json:"message"`
}

// RedisBridge fans broadcasts out to other instances over a Redis channel.
type RedisBridge struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     *zap.Logger
}

// ConnectRedis parses url as a redis:// URL, falling back to treating it as
// a plain host:port address.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewRedisBridge(rdb *redis.Client, channel string, log *zap.Logger) *RedisBridge {
	return &RedisBridge{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     logger.Module(log, "realtime"),
	}
}

func (b *RedisBridge) Publish(ctx context.Context, data []byte) error {
	payload, err := b.wrap(data)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

// Relay delivers messages published by other instances to the local hub
// until ctx is done.
func (b *RedisBridge) Relay(ctx context.Context, hub *Hub) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			data, ok := b.unwrap(msg.Payload)
			if ok {
				hub.Broadcast(data)
			}
		}
	}
}

func (b *RedisBridge) wrap(data []byte) ([]byte, error) {
	return json.Marshal(envelope{Origin: b.origin, Message: data})
}

// unwrap returns the inner message, or false for own or malformed payloads.
func (b *RedisBridge) unwrap(payload string) ([]byte, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Warn("malformed redis message", zap.Error(err))
		return nil, false
	}
	if env.Origin == b.origin || len(env.Message) == 0 {
		return nil, false
	}
	return env.Message, true
}
