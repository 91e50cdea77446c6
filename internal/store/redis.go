package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/ordertrack/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const ordersIndexKey = "orders"

func orderKey(orderID string) string {
	return "order:" + orderID
}

// NewRedisClient connects to Redis and installs the circuit breaker hook.
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	client.AddHook(NewCircuitBreakerHook())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps one JSON blob per order plus a set index for LoadAll.
type RedisStore struct {
	rdb *goredis.Client
}

func NewRedisStore(rdb *goredis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, record *domain.OrderStatusRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, orderKey(record.OrderID), data, 0)
	pipe.SAdd(ctx, ordersIndexKey, record.OrderID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save order %s: %w", record.OrderID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, orderID string) (*domain.OrderStatusRecord, error) {
	data, err := s.rdb.Get(ctx, orderKey(orderID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	var record domain.OrderStatusRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order %s: %w", orderID, err)
	}
	return &record, nil
}

func (s *RedisStore) LoadAll(ctx context.Context) ([]*domain.OrderStatusRecord, error) {
	ids, err := s.rdb.SMembers(ctx, ordersIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	out := make([]*domain.OrderStatusRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.Load(ctx, id)
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Index entry outlived the record; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}
