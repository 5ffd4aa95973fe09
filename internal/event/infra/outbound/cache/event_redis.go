package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	sharedCache "github.com/davicafu/doorbell/shared/platform/cache"
)

// DefaultNamespace prefija todas las claves del servicio en Redis.
const DefaultNamespace = "doorbell:"

// RedisEventCache guarda eventos completos serializados en JSON bajo un espacio de nombres.
type RedisEventCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

var _ sharedCache.Cache = (*RedisEventCache)(nil)

// NewRedisEventCache comprueba la conexión antes de devolver la caché.
func NewRedisEventCache(ctx context.Context, client *redis.Client, namespace string, ttl time.Duration) (*RedisEventCache, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("could not ping redis: %w", err)
	}
	return &RedisEventCache{client: client, namespace: namespace, ttl: ttl}, nil
}

func (c *RedisEventCache) key(k string) string {
	return c.namespace + k
}

func (c *RedisEventCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // cache miss
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisEventCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	ttl := c.ttl
	if ttlSecs > 0 {
		ttl = time.Duration(ttlSecs) * time.Second
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *RedisEventCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// DeleteMatching borra las claves del espacio de nombres que casan con pattern
// (sintaxis de SCAN MATCH) y devuelve cuántas eliminó.
func (c *RedisEventCache) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	const batch = 100

	deleted := 0
	keys := make([]string, 0, batch)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, keys...).Result()
		if err != nil {
			return err
		}
		deleted += int(n)
		keys = keys[:0]
		return nil
	}

	iter := c.client.Scan(ctx, 0, c.key(pattern), batch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == batch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, flush()
}
