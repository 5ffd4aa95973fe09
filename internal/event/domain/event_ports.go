package domain

import (
	"context"
	"errors"
	"fmt"

	sharedQuery "github.com/davicafu/doorbell/shared/platform/query"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrStoreFailure  = errors.New("store failure")
	ErrEventNotFound = errors.New("event not found")
)

// --- Store de eventos ---

// EventStore persiste metadatos y payload como una unidad durable.
type EventStore interface {
	// Commit asigna id y createdAt y persiste el evento de forma atómica.
	Commit(ctx context.Context, d Draft) (*Event, error)
	// List devuelve metadatos ordenados por (createdAt desc, id desc), sin bytes.
	List(ctx context.Context, page sharedQuery.CursorPagination) ([]EventMeta, error)
	Get(ctx context.Context, id string) (*Event, error)
	// DeleteAll es la purga administrativa; devuelve cuántos eventos se borraron.
	DeleteAll(ctx context.Context) (int64, error)
}

// NotificationPublisher entrega notificaciones al canal en vivo sin bloquear.
// Devuelve false si la notificación fue descartada.
type NotificationPublisher interface {
	Publish(n Notification) bool
}

// ---------- Helpers comunes (cache keys, etc.) ----------

func EventCacheKeyByID(id string) string {
	return fmt.Sprintf("event:id:%s", id)
}
