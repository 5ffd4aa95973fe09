package blob

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/domain"
	"github.com/davicafu/doorbell/internal/idgen"
	sharedQuery "github.com/davicafu/doorbell/shared/platform/query"
)

const DefaultPrefix = "doorbell/payloads/"

// OffloadStore decora un EventStore: los payloads a partir de minBytes se
// escriben primero en el almacén de objetos y el Store sólo guarda la referencia.
// Nunca existen metadatos sin su blob; un blob huérfano es invisible para los lectores.
type OffloadStore struct {
	inner    domain.EventStore
	objects  ObjectStore
	prefix   string
	minBytes int
	log      *zap.Logger
}

var _ domain.EventStore = (*OffloadStore)(nil)

func NewOffloadStore(inner domain.EventStore, objects ObjectStore, prefix string, minBytes int, log *zap.Logger) *OffloadStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &OffloadStore{inner: inner, objects: objects, prefix: prefix, minBytes: minBytes, log: log}
}

func (s *OffloadStore) Commit(ctx context.Context, d domain.Draft) (*domain.Event, error) {
	if d.Payload == nil || len(d.Payload.Data) == 0 || len(d.Payload.Data) < s.minBytes {
		return s.inner.Commit(ctx, d)
	}
	if err := d.Validate(0); err != nil {
		return nil, err
	}

	key, err := idgen.GenerateWithPrefix(s.prefix)
	if err != nil {
		return nil, err
	}
	data := d.Payload.Data
	if err := s.objects.Put(ctx, key, d.Payload.ContentType, data); err != nil {
		return nil, err
	}

	ref := d
	ref.Payload = &domain.Payload{
		ContentType: d.Payload.ContentType,
		Filename:    d.Payload.Filename,
		Size:        int64(len(data)),
		BlobKey:     key,
	}

	evt, err := s.inner.Commit(ctx, ref)
	if err != nil {
		// best effort: el blob sin metadatos no es alcanzable por ningún lector
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.log.Warn("Orphaned payload blob", zap.String("blob_key", key), zap.Error(delErr))
		}
		return nil, err
	}

	return withData(evt, append([]byte(nil), data...)), nil
}

func (s *OffloadStore) Get(ctx context.Context, id string) (*domain.Event, error) {
	evt, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if evt.Payload == nil || evt.Payload.BlobKey == "" || len(evt.Payload.Data) > 0 {
		return evt, nil
	}

	data, err := s.objects.Get(ctx, evt.Payload.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("load payload of event %s: %w", id, err)
	}

	return withData(evt, data), nil
}

func (s *OffloadStore) List(ctx context.Context, page sharedQuery.CursorPagination) ([]domain.EventMeta, error) {
	return s.inner.List(ctx, page)
}

// withData copia el evento para no mutar lo que devuelva el Store interno.
func withData(evt *domain.Event, data []byte) *domain.Event {
	out := *evt
	p := *evt.Payload
	p.Data = data
	out.Payload = &p
	return &out
}

// DeleteAll purga los metadatos y después todo el prefijo de objetos.
func (s *OffloadStore) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.inner.DeleteAll(ctx)
	if err != nil {
		return n, err
	}

	blobs, err := s.objects.DeletePrefix(ctx, s.prefix)
	if err != nil {
		return n, fmt.Errorf("purge payload blobs: %w", err)
	}
	s.log.Info("Payload blobs purged", zap.Int("count", blobs), zap.String("prefix", s.prefix))
	return n, nil
}
