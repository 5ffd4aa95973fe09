// en internal/event/application/ingest_service.go
package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/domain"
	sharedCache "github.com/davicafu/doorbell/shared/platform/cache"
)

const (
	// Sólo se precalientan en caché los eventos con payload pequeño.
	maxCachedPayloadBytes = 256 << 10
	eventCacheTTLSecs     = 120
)

// IngestService valida, persiste y sólo después anuncia cada evento.
type IngestService struct {
	store           domain.EventStore
	publisher       domain.NotificationPublisher
	cache           sharedCache.Cache
	maxPayloadBytes int64
	log             *zap.Logger
}

// NewIngestService es el constructor del pipeline de ingesta.
func NewIngestService(store domain.EventStore, publisher domain.NotificationPublisher, cache sharedCache.Cache, maxPayloadBytes int64, log *zap.Logger) *IngestService {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = domain.DefaultMaxPayloadBytes
	}
	return &IngestService{
		store:           store,
		publisher:       publisher,
		cache:           cache,
		maxPayloadBytes: maxPayloadBytes,
		log:             log,
	}
}

// MaxPayloadBytes expone el límite para que los adaptadores acoten el cuerpo.
func (s *IngestService) MaxPayloadBytes() int64 { return s.maxPayloadBytes }

// Ingest persiste el borrador y, sólo si el commit fue durable, lo difunde.
func (s *IngestService) Ingest(ctx context.Context, d domain.Draft) (*domain.Event, error) {
	// 1. Validación antes de tocar el Store
	if err := d.Validate(s.maxPayloadBytes); err != nil {
		s.log.Info("Rejected event draft", zap.String("kind", string(d.Kind)), zap.Error(err))
		return nil, err
	}

	// 2. Commit durable
	evt, err := s.store.Commit(ctx, d)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		s.log.Error("Failed to commit event", zap.String("kind", string(d.Kind)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
	}

	// 3. A partir de aquí el evento existe: la cancelación del llamante ya no
	// retrae nada ni suprime la notificación.
	if s.publisher != nil && !s.publisher.Publish(evt.Notification()) {
		s.log.Warn("Live notification not accepted", zap.String("event_id", evt.ID))
	}

	if evt.Payload == nil || len(evt.Payload.Data) <= maxCachedPayloadBytes {
		sharedCache.AsyncCacheSet(context.WithoutCancel(ctx), s.cache, domain.EventCacheKeyByID(evt.ID), evt, eventCacheTTLSecs, s.log)
	}

	s.log.Info("Event ingested",
		zap.String("event_id", evt.ID),
		zap.String("kind", string(evt.Kind)),
		zap.String("source", evt.SourceLabel),
	)
	return evt, nil
}
