package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the token in Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Channel  string
}

// RedisStore keeps the token under a key and announces updates on a
// pub/sub channel, so several instances observe the same registration.
type RedisStore struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedisStore connects and verifies the connection
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("[Token] Connected to Redis", "addr", cfg.Addr, "key", cfg.Key)

	return &RedisStore{
		client:  rdb,
		key:     cfg.Key,
		channel: cfg.Channel,
	}, nil
}

func (r *RedisStore) Load(ctx context.Context) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return DecodeHex(val)
}

func (r *RedisStore) Save(ctx context.Context, token []byte) error {
	encoded := EncodeHex(token)
	if err := r.client.Set(ctx, r.key, encoded, 0).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, encoded).Err(); err != nil {
		return fmt.Errorf("failed to publish token: %w", err)
	}
	return nil
}

func (r *RedisStore) Observe(ctx context.Context) (<-chan []byte, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	// Wait for the subscription to be confirmed so no update is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	out := make(chan []byte, 1)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				tok, err := DecodeHex(msg.Payload)
				if err != nil {
					slog.Warn("[Token] Ignoring invalid token update", "error", err)
					continue
				}
				select {
				case out <- tok:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
