// Package redisstore persists the shared region in Redis. Change events
// travel over a pub/sub channel so handles in other processes converge
// without polling.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tqhub/internal/storage"
	"tqhub/pkg/platform/sentinel"
)

const eventChannel = "tqhub.storage.events"

// notification is the wire form of a change event. Origin lets a handle drop
// echoes of its own writes, since Redis pub/sub delivers to the publisher too.
type notification struct {
	Origin string            `json:"origin"`
	Key    string            `json:"key"`
	Kind   storage.EventKind `json:"kind"`
}

// Store is one process's handle onto the Redis-backed region.
type Store struct {
	client redis.UniversalClient
	origin string
	logger *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New constructs a Store over an existing client. Each Store gets its own
// origin ID; two Stores on the same client still behave like separate tabs.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		origin: uuid.NewString(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("key %q: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return s.publish(ctx, key, storage.EventSet)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if deleted == 0 {
		// Nothing was stored, so nothing changed; stay silent.
		return nil
	}
	return s.publish(ctx, key, storage.EventCleared)
}

func (s *Store) Watch(ctx context.Context, key string) (<-chan storage.Event, error) {
	sub := s.client.Subscribe(ctx, eventChannel)
	// Force the subscription to be established before we report success;
	// otherwise a write racing Watch could be missed silently.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan storage.Event, 16)
	messages := sub.Channel()

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var n notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					s.logger.Warn("dropping malformed storage notification", "error", err)
					continue
				}
				if n.Origin == s.origin || n.Key != key {
					continue
				}
				select {
				case out <- storage.Event{Key: n.Key, Kind: n.Kind}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Store) publish(ctx context.Context, key string, kind storage.EventKind) error {
	payload, err := json.Marshal(notification{Origin: s.origin, Key: key, Kind: kind})
	if err != nil {
		return fmt.Errorf("marshal storage notification: %w", err)
	}
	if err := s.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
