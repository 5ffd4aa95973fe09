package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/doorbell/internal/event/domain"
)

// newTestRedisCache usa un espacio de nombres aleatorio para no pisar otros datos.
func newTestRedisCache(t *testing.T) *RedisEventCache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	c, err := NewRedisEventCache(ctx, client, "doorbell-test-"+uuid.NewString()+":", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = c.DeleteMatching(context.Background(), "*") })
	return c
}

func TestRedisEventCache_SetGetDelete(t *testing.T) {
	// Arrange
	c := newTestRedisCache(t)
	ctx := context.Background()
	evt := domain.Event{ID: "e1", Kind: domain.KindImage, Payload: &domain.Payload{ContentType: "image/png", Data: []byte{1, 2}, Size: 2}}
	key := domain.EventCacheKeyByID(evt.ID)

	// Act
	require.NoError(t, c.Set(ctx, key, evt, 0))

	// Assert
	var got domain.Event
	hit, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []byte{1, 2}, got.Payload.Data)

	ttl, err := c.client.TTL(ctx, c.key(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "sin ttlSecs se usa el TTL por defecto")

	require.NoError(t, c.Delete(ctx, key))
	hit, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisEventCache_DeleteMatchingOnlyEvents(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		require.NoError(t, c.Set(ctx, domain.EventCacheKeyByID(fmt.Sprintf("e%d", i)), i, 60))
	}
	require.NoError(t, c.Set(ctx, "other:key", "keep", 60))

	n, err := c.DeleteMatching(ctx, domain.EventCacheKeyByID("*"))

	require.NoError(t, err)
	assert.Equal(t, 150, n)
	var v int
	hit, _ := c.Get(ctx, domain.EventCacheKeyByID("e0"), &v)
	assert.False(t, hit)
	var s string
	hit, _ = c.Get(ctx, "other:key", &s)
	assert.True(t, hit)
}

func TestRedisEventCache_Namespace(t *testing.T) {
	c := &RedisEventCache{namespace: "doorbell:"}
	assert.Equal(t, "doorbell:event:id:abc", c.key(domain.EventCacheKeyByID("abc")))
}
