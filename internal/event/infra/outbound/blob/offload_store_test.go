package blob

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/domain"
	"github.com/davicafu/doorbell/internal/event/infra/outbound/db/storetest"
	"github.com/davicafu/doorbell/internal/mocks"
)

// memObjects es un ObjectStore en memoria.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (m *memObjects) Put(ctx context.Context, key, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memObjects) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
			n++
		}
	}
	return n, nil
}

func (m *memObjects) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func imageDraft(n int) domain.Draft {
	return domain.Draft{
		Kind:    domain.KindImage,
		Payload: &domain.Payload{ContentType: "image/jpeg", Filename: "a.jpg", Data: []byte(strings.Repeat("x", n))},
	}
}

func TestOffloadStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, ids *domain.IdentityGenerator) domain.EventStore {
		return NewOffloadStore(mocks.NewInMemoryEventStoreWithIDs(ids), newMemObjects(), "", 1, zap.NewNop())
	})
}

func TestOffloadStore_LargePayloadGoesToObjects(t *testing.T) {
	// Arrange
	inner := mocks.NewInMemoryEventStore()
	objects := newMemObjects()
	store := NewOffloadStore(inner, objects, "p/", 8, zap.NewNop())

	// Act
	evt, err := store.Commit(context.Background(), imageDraft(16))

	// Assert
	require.NoError(t, err)
	assert.Len(t, evt.Payload.Data, 16)
	assert.Equal(t, 1, objects.len())

	raw, err := inner.Get(context.Background(), evt.ID)
	require.NoError(t, err)
	assert.Empty(t, raw.Payload.Data, "el store interno sólo guarda la referencia")
	assert.True(t, strings.HasPrefix(raw.Payload.BlobKey, "p/"))
	assert.Equal(t, int64(16), raw.Payload.Size)

	got, err := store.Get(context.Background(), evt.ID)
	require.NoError(t, err)
	assert.Equal(t, evt.Payload.Data, got.Payload.Data)
	assert.Empty(t, raw.Payload.Data, "Get no muta el evento del store interno")
}

func TestOffloadStore_SmallPayloadStaysInline(t *testing.T) {
	inner := mocks.NewInMemoryEventStore()
	objects := newMemObjects()
	store := NewOffloadStore(inner, objects, "p/", 8, zap.NewNop())

	evt, err := store.Commit(context.Background(), imageDraft(4))

	require.NoError(t, err)
	assert.Equal(t, 0, objects.len())
	raw, err := inner.Get(context.Background(), evt.ID)
	require.NoError(t, err)
	assert.Len(t, raw.Payload.Data, 4)
}

func TestOffloadStore_BlobFailureCommitsNothing(t *testing.T) {
	inner := mocks.NewInMemoryEventStore()
	objects := newMemObjects()
	objects.putErr = errors.New("bucket unavailable")
	store := NewOffloadStore(inner, objects, "p/", 1, zap.NewNop())

	_, err := store.Commit(context.Background(), imageDraft(4))

	assert.ErrorContains(t, err, "bucket unavailable")
	assert.Equal(t, 0, inner.Len())
}

func TestOffloadStore_MetadataFailureDeletesBlob(t *testing.T) {
	// Arrange
	inner := &mocks.MockEventStore{}
	inner.On("Commit", mock.Anything, mock.Anything).Return(nil, errors.New("insert failed"))
	objects := newMemObjects()
	store := NewOffloadStore(inner, objects, "p/", 1, zap.NewNop())

	// Act
	_, err := store.Commit(context.Background(), imageDraft(4))

	// Assert
	assert.ErrorContains(t, err, "insert failed")
	assert.Equal(t, 0, objects.len(), "no quedan blobs huérfanos")
}

func TestOffloadStore_DeleteAllPurgesPrefix(t *testing.T) {
	inner := mocks.NewInMemoryEventStore()
	objects := newMemObjects()
	store := NewOffloadStore(inner, objects, "p/", 1, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, err := store.Commit(context.Background(), imageDraft(4))
		require.NoError(t, err)
	}
	require.NoError(t, objects.Put(context.Background(), "other/keep", "x", []byte{1}))

	n, err := store.DeleteAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, objects.len())
}
