// Package storetest contiene la batería de pruebas común a todos los EventStore.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/doorbell/internal/event/domain"
	sharedQuery "github.com/davicafu/doorbell/shared/platform/query"
)

// Factory crea un store vacío cuyo generador de identidades usa el reloj dado.
type Factory func(t *testing.T, ids *domain.IdentityGenerator) domain.EventStore

// Run ejecuta la batería completa contra el store que construye newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore) })
	t.Run("InvalidDraft", func(t *testing.T) { testInvalidDraft(t, newStore) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, newStore) })
	t.Run("ListOrderWithTies", func(t *testing.T) { testListOrderWithTies(t, newStore) })
	t.Run("ListCursorAndFilters", func(t *testing.T) { testListCursorAndFilters(t, newStore) })
	t.Run("ConcurrentCommits", func(t *testing.T) { testConcurrentCommits(t, newStore) })
	t.Run("DeleteAll", func(t *testing.T) { testDeleteAll(t, newStore) })
}

func image(label string, data []byte) domain.Draft {
	return domain.Draft{
		Kind:        domain.KindImage,
		SourceLabel: label,
		Payload:     &domain.Payload{ContentType: "image/jpeg", Filename: label + ".jpg", Data: data},
	}
}

func press() domain.Draft {
	return domain.Draft{Kind: domain.KindButtonPress}
}

func testRoundTrip(t *testing.T, newStore Factory) {
	// Arrange
	store := newStore(t, domain.NewIdentityGenerator(nil))
	ctx := context.Background()
	data := []byte{0xff, 0xd8, 0x00, 0x01, 0x02}

	// Act
	evt, err := store.Commit(ctx, image("front", data))
	require.NoError(t, err)
	got, err := store.Get(ctx, evt.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, domain.KindImage, got.Kind)
	assert.Equal(t, "front", got.SourceLabel)
	assert.True(t, evt.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", evt.CreatedAt, got.CreatedAt)
	require.NotNil(t, got.Payload)
	assert.Equal(t, data, got.Payload.Data)
	assert.Equal(t, "image/jpeg", got.Payload.ContentType)
	assert.Equal(t, "front.jpg", got.Payload.Filename)
	assert.Equal(t, int64(len(data)), got.Payload.Size)

	pressEvt, err := store.Commit(ctx, press())
	require.NoError(t, err)
	gotPress, err := store.Get(ctx, pressEvt.ID)
	require.NoError(t, err)
	assert.Nil(t, gotPress.Payload)
}

func testInvalidDraft(t *testing.T, newStore Factory) {
	store := newStore(t, domain.NewIdentityGenerator(nil))

	_, err := store.Commit(context.Background(), domain.Draft{Kind: domain.KindImage})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	metas, err := store.List(context.Background(), sharedQuery.CursorPagination{})
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func testGetNotFound(t *testing.T, newStore Factory) {
	store := newStore(t, domain.NewIdentityGenerator(nil))

	_, err := store.Get(context.Background(), "01890a5d-ac96-774b-bcce-b302099a8057")

	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func testListOrderWithTies(t *testing.T, newStore Factory) {
	// Arrange: reloj congelado, todos los eventos comparten createdAt
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	store := newStore(t, domain.NewIdentityGenerator(func() time.Time { return frozen }))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		evt, err := store.Commit(ctx, image(fmt.Sprintf("cam%d", i), []byte{byte(i + 1)}))
		require.NoError(t, err)
		ids = append(ids, evt.ID)
	}

	// Act
	metas, err := store.List(ctx, sharedQuery.CursorPagination{})

	// Assert: más reciente primero, desempate por id descendente
	require.NoError(t, err)
	require.Len(t, metas, 4)
	for i, m := range metas {
		assert.Equal(t, ids[len(ids)-1-i], m.ID)
		assert.True(t, frozen.Equal(m.CreatedAt))
		assert.Equal(t, int64(1), m.Size)
		assert.Equal(t, "image/jpeg", m.ContentType)
	}
}

func testListCursorAndFilters(t *testing.T, newStore Factory) {
	// Arrange: dos eventos por milisegundo para mezclar empates y avances
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	store := newStore(t, domain.NewIdentityGenerator(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts := base.Add(time.Duration(n/2) * time.Millisecond)
		n++
		return ts
	}))
	ctx := context.Background()

	var all []*domain.Event
	for i := 0; i < 7; i++ {
		d := press()
		if i%2 == 0 {
			d = image(fmt.Sprintf("img%d", i), []byte{byte(i + 1)})
		}
		evt, err := store.Commit(ctx, d)
		require.NoError(t, err)
		all = append(all, evt)
	}

	// Act: recorrer en páginas de 3 siguiendo el cursor
	var walked []string
	page := sharedQuery.CursorPagination{Limit: 3}
	for {
		metas, err := store.List(ctx, page)
		require.NoError(t, err)
		for _, m := range metas {
			walked = append(walked, m.ID)
		}
		if len(metas) < page.Limit {
			break
		}
		page.BeforeID = metas[len(metas)-1].ID
	}

	// Assert
	var want []string
	for i := len(all) - 1; i >= 0; i-- {
		want = append(want, all[i].ID)
	}
	assert.Equal(t, want, walked)

	_, err := store.List(ctx, sharedQuery.CursorPagination{BeforeID: "01890a5d-ac96-774b-bcce-b302099a8057"})
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	older, err := store.List(ctx, sharedQuery.CursorPagination{BeforeTime: all[2].CreatedAt})
	require.NoError(t, err)
	require.Len(t, older, 2, "sólo los eventos del primer milisegundo")
	assert.Equal(t, all[1].ID, older[0].ID)

	// un cursor con fracción de milisegundo incluye los eventos de ese milisegundo
	within, err := store.List(ctx, sharedQuery.CursorPagination{BeforeTime: all[2].CreatedAt.Add(500 * time.Microsecond)})
	require.NoError(t, err)
	require.Len(t, within, 4)
	assert.Equal(t, all[3].ID, within[0].ID)

	images, err := store.List(ctx, sharedQuery.CursorPagination{Kind: string(domain.KindImage)})
	require.NoError(t, err)
	assert.Len(t, images, 4)
	for _, m := range images {
		assert.Equal(t, domain.KindImage, m.Kind)
	}
}

func testConcurrentCommits(t *testing.T, newStore Factory) {
	store := newStore(t, domain.NewIdentityGenerator(nil))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Commit(ctx, image(fmt.Sprintf("c%d", i), []byte{byte(i + 1)}))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	metas, err := store.List(ctx, sharedQuery.CursorPagination{Limit: 100})
	require.NoError(t, err)
	require.Len(t, metas, 20)
	for i := 1; i < len(metas); i++ {
		prev, cur := metas[i-1], metas[i]
		assert.False(t, cur.CreatedAt.After(prev.CreatedAt))
		if cur.CreatedAt.Equal(prev.CreatedAt) {
			assert.Greater(t, prev.ID, cur.ID)
		}
	}
}

func testDeleteAll(t *testing.T, newStore Factory) {
	store := newStore(t, domain.NewIdentityGenerator(nil))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.Commit(ctx, press())
		require.NoError(t, err)
	}

	n, err := store.DeleteAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	metas, err := store.List(ctx, sharedQuery.CursorPagination{})
	require.NoError(t, err)
	assert.Empty(t, metas)
}
