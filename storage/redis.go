package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	_ Storage = (*Redis)(nil)
	_ Watcher = (*Redis)(nil)
)

const eventsChannel = "events"

// Redis stores keys under a prefix and announces every write on a pub/sub channel
// so other instances using the same prefix can react.
type Redis struct {
	rdb    *redis.Client
	prefix string
	source string
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{
		rdb:    rdb,
		prefix: prefix,
		source: uuid.New().String(),
	}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) channel() string {
	return r.prefix + eventsChannel
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	value, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", errors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return r.publish(ctx, Event{Source: r.source, Key: key, Value: value})
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	for _, k := range keys {
		if err := r.publish(ctx, Event{Source: r.source, Key: k}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Redis) publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel(), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Watch subscribes to the events channel. It returns once the subscription is confirmed,
// so writes made after Watch returns are guaranteed to be delivered.
func (r *Redis) Watch(ctx context.Context, fn func(Event)) (func(), error) {
	sub := r.rdb.Subscribe(ctx, r.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("Ignoring malformed storage event")
				continue
			}
			if event.Source == r.source {
				continue
			}
			fn(event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = sub.Close()
			<-done
		})
	}, nil
}
