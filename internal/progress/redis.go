package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON value per (user, test) and publishes every write
// to a matching pub/sub channel so watchers can follow a session live.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(address, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func redisKey(userID, testID string) string {
	return fmt.Sprintf("progress:%s:%s", userID, testID)
}

func (s *RedisStore) Load(ctx context.Context, userID, testID string) (Snapshot, error) {
	raw, err := s.client.Get(ctx, redisKey(userID, testID)).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrAbsent
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode stored progress: %w", err)
	}
	return snap, nil
}

func (s *RedisStore) Save(ctx context.Context, userID, testID string, snap Snapshot) error {
	buf, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	key := redisKey(userID, testID)
	if err := s.client.Set(ctx, key, buf, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	// Fire-and-forget: a missed publish only delays watchers until the next
	// write.
	if err := s.client.Publish(ctx, key, buf).Err(); err != nil {
		slog.Warn("progress publish failed", "key", key, "error", err)
	}
	return nil
}

func (s *RedisStore) Watch(ctx context.Context, userID, testID string) (<-chan Snapshot, func(), error) {
	sub := s.client.Subscribe(ctx, redisKey(userID, testID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var snap Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				slog.Warn("progress watch: bad payload", "error", err)
				continue
			}
			select {
			case out <- snap:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- snap:
				default:
				}
			}
		}
	}()
	stop := func() { _ = sub.Close() }
	return out, stop, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }
