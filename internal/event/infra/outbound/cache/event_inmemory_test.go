package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/doorbell/internal/event/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestInMemoryEventCache_SetGetExpire(t *testing.T) {
	// Arrange
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newInMemoryEventCache(time.Minute, 0, clock.Now)
	evt := domain.Event{ID: "e1", Kind: domain.KindImage, Payload: &domain.Payload{ContentType: "image/png", Data: []byte{1, 2}, Size: 2}}
	ctx := context.Background()

	// Act
	require.NoError(t, c.Set(ctx, domain.EventCacheKeyByID("e1"), evt, 10))

	// Assert
	var got domain.Event
	hit, err := c.Get(ctx, domain.EventCacheKeyByID("e1"), &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []byte{1, 2}, got.Payload.Data)

	clock.Advance(11 * time.Second)
	hit, err = c.Get(ctx, domain.EventCacheKeyByID("e1"), &got)
	require.NoError(t, err)
	assert.False(t, hit, "expirado cuenta como miss")
}

func TestInMemoryEventCache_DefaultTTLAndDelete(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := newInMemoryEventCache(time.Minute, 0, clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	clock.Advance(30 * time.Second)
	var v string
	hit, _ := c.Get(ctx, "k", &v)
	assert.True(t, hit)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "k"))
	hit, _ = c.Get(ctx, "k", &v)
	assert.False(t, hit)
}

func TestInMemoryEventCache_MaxBytes(t *testing.T) {
	// Arrange: "aaaa" ocupa 6 bytes en JSON; caben dos valores
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := newInMemoryEventCache(time.Minute, 12, clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "aaaa", 1))
	require.NoError(t, c.Set(ctx, "b", "bbbb", 60))
	require.NoError(t, c.Set(ctx, "c", "cccc", 60))

	// Assert: llena, la clave nueva no entra
	var v string
	hit, _ := c.Get(ctx, "c", &v)
	assert.False(t, hit)
	assert.Equal(t, 12, c.Bytes())

	// sobrescribir una clave existente no cuenta dos veces
	require.NoError(t, c.Set(ctx, "b", "BBBB", 60))
	assert.Equal(t, 12, c.Bytes())

	// un valor que nunca cabe se descarta
	require.NoError(t, c.Set(ctx, "big", "0123456789abcdef", 60))
	hit, _ = c.Get(ctx, "big", &v)
	assert.False(t, hit)

	// al expirar "a" queda hueco
	clock.Advance(2 * time.Second)
	require.NoError(t, c.Set(ctx, "c", "cccc", 60))
	hit, _ = c.Get(ctx, "c", &v)
	assert.True(t, hit)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 12, c.Bytes())

	require.NoError(t, c.Delete(ctx, "c"))
	assert.Equal(t, 6, c.Bytes())
}

func TestInMemoryEventCache_StopIsIdempotent(t *testing.T) {
	c := NewInMemoryEventCache(time.Minute, time.Millisecond, 0)
	c.Stop()
	assert.NotPanics(t, c.Stop)
}
