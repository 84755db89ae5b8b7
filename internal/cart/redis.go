package cart

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pharmabill/backend/internal/domain"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func cartKey(terminalID string) string {
	return "cart:" + terminalID
}

func (s *RedisStore) Get(ctx context.Context, terminalID string) (*domain.Cart, bool, error) {
	val, err := s.client.Get(ctx, cartKey(terminalID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(val), &cart); err != nil {
		return nil, false, err
	}
	return &cart, true, nil
}

func (s *RedisStore) Save(ctx context.Context, cart domain.Cart, ttl time.Duration) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cartKey(cart.TerminalID), payload, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, terminalID string) error {
	return s.client.Del(ctx, cartKey(terminalID)).Err()
}
