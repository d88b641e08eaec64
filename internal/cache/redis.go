package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CartTTL : un panier non modifié expire au bout de 30 jours.
const CartTTL = 30 * 24 * time.Hour

// RedisStore partage un client Redis entre toutes les sessions.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = CartTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Namespace retourne le stockage d'une session : la clé "cart" devient "cart:<namespace>".
func (s *RedisStore) Namespace(namespace string) Storage {
	return &RedisStorage{client: s.client, namespace: namespace, ttl: s.ttl}
}

type RedisStorage struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.redisKey(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisStorage) redisKey(key string) string {
	if r.namespace == "" {
		return key
	}
	return key + ":" + r.namespace
}
