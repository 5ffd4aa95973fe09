// en internal/event/application/query_service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/domain"
	sharedCache "github.com/davicafu/doorbell/shared/platform/cache"
	sharedQuery "github.com/davicafu/doorbell/shared/platform/query"
	sharedUtils "github.com/davicafu/doorbell/shared/utils"
)

// QueryService sólo lee del Store; nunca toca el Broadcaster.
type QueryService struct {
	store domain.EventStore
	cache sharedCache.Cache
	log   *zap.Logger
}

func NewQueryService(store domain.EventStore, cache sharedCache.Cache, log *zap.Logger) *QueryService {
	return &QueryService{store: store, cache: cache, log: log}
}

// Listing es una página de metadatos. NextBefore es el cursor de la página
// siguiente, vacío si no hay más.
type Listing struct {
	Events     []domain.EventMeta `json:"events"`
	NextBefore string             `json:"nextBefore,omitempty"`
}

// ListRecent devuelve los eventos más recientes primero.
func (s *QueryService) ListRecent(ctx context.Context, page sharedQuery.CursorPagination) (*Listing, error) {
	if page.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidInput)
	}
	if page.Kind != "" && !domain.Kind(page.Kind).Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, page.Kind)
	}
	page = page.Normalize()

	metas, err := s.store.List(ctx, page)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil, fmt.Errorf("%w: unknown cursor %q", domain.ErrInvalidInput, page.BeforeID)
		}
		s.log.Error("Failed to list events", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
	}

	listing := &Listing{Events: metas}
	if listing.Events == nil {
		listing.Events = []domain.EventMeta{}
	}
	if len(metas) == page.Limit {
		listing.NextBefore = metas[len(metas)-1].ID
	}
	return listing, nil
}

// GetFull obtiene un evento completo usando el patrón cache-aside con reintentos.
func (s *QueryService) GetFull(ctx context.Context, id string) (*domain.Event, error) {
	// 1. Intentar obtener de la caché
	if s.cache != nil {
		var e domain.Event
		if hit, _ := s.cache.Get(ctx, domain.EventCacheKeyByID(id), &e); hit {
			return &e, nil
		}
	}

	// 2. Si es 'miss', ir al Store con reintentos (nunca para not-found)
	var evt *domain.Event
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var errRetry error
		evt, errRetry = s.store.Get(ctx, id)
		if errors.Is(errRetry, domain.ErrEventNotFound) {
			return sharedUtils.Permanent(errRetry)
		}
		return errRetry
	})

	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			s.log.Warn("Event not found", zap.String("event_id", id))
			return nil, err
		}
		s.log.Error("Failed to fetch event", zap.String("event_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
	}

	// 3. Actualizar caché en segundo plano para la próxima vez
	if evt.Payload == nil || len(evt.Payload.Data) <= maxCachedPayloadBytes {
		sharedCache.AsyncCacheSet(ctx, s.cache, domain.EventCacheKeyByID(evt.ID), evt, eventCacheTTLSecs, s.log)
	}

	return evt, nil
}
