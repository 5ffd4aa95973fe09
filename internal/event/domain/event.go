package domain

import (
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	sharedBus "github.com/davicafu/doorbell/shared/platform/bus"
)

type Kind string

const (
	KindImage       Kind = "image"
	KindButtonPress Kind = "button_press"
)

// Tipos de notificación del canal en vivo.
const (
	NotificationNewImage = "new_image"
	NotificationDoorbell = "doorbell"

	DoorbellMessage = "Someone is at the door!"
)

const (
	// DefaultMaxPayloadBytes es el límite de tamaño por defecto para una imagen (10 MiB).
	DefaultMaxPayloadBytes int64 = 10 << 20
	MaxSourceLabelLen          = 128
)

func (k Kind) Valid() bool {
	return k == KindImage || k == KindButtonPress
}

// Payload son los bytes de una imagen junto con su tipo de contenido declarado.
// BlobKey sólo se rellena cuando los bytes viven en un almacén de objetos externo.
type Payload struct {
	ContentType string `json:"contentType"`
	Filename    string `json:"filename,omitempty"`
	Data        []byte `json:"data,omitempty"`
	Size        int64  `json:"size"`
	BlobKey     string `json:"-"`
}

// Event es la entidad inmutable que devuelve el Store tras el commit.
type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	SourceLabel string    `json:"sourceLabel,omitempty"`
	Payload     *Payload  `json:"payload,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EventMeta es la vista de lectura sin bytes de payload.
type EventMeta struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	SourceLabel string    `json:"sourceLabel,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Notification es el mensaje que el Broadcaster entrega a cada suscriptor.
type Notification struct {
	Type    string    `json:"type"`
	Message string    `json:"message,omitempty"`
	Event   EventMeta `json:"event"`
}

func (n Notification) PartitionKey() string {
	return n.Event.ID
}

var _ sharedBus.Keyer = Notification{}

func (e *Event) Meta() EventMeta {
	m := EventMeta{
		ID:          e.ID,
		Kind:        e.Kind,
		SourceLabel: e.SourceLabel,
		CreatedAt:   e.CreatedAt,
	}
	if e.Payload != nil {
		m.ContentType = e.Payload.ContentType
		m.Filename = e.Payload.Filename
		m.Size = e.Payload.Size
	}
	return m
}

func (e *Event) Notification() Notification {
	n := Notification{Event: e.Meta()}
	switch e.Kind {
	case KindButtonPress:
		n.Type = NotificationDoorbell
		n.Message = DoorbellMessage
	default:
		n.Type = NotificationNewImage
	}
	return n
}

// Draft es la petición de ingesta ya decodificada, todavía sin id ni fecha.
type Draft struct {
	Kind        Kind
	SourceLabel string
	Payload     *Payload
}

// Validate comprueba las reglas de un borrador. maxBytes <= 0 desactiva el límite de tamaño.
func (d Draft) Validate(maxBytes int64) error {
	if utf8.RuneCountInString(d.SourceLabel) > MaxSourceLabelLen {
		return fmt.Errorf("%w: sourceLabel longer than %d characters", ErrInvalidInput, MaxSourceLabelLen)
	}

	switch d.Kind {
	case KindImage:
		return d.validateImage(maxBytes)
	case KindButtonPress:
		if d.Payload != nil {
			return fmt.Errorf("%w: button_press events carry no payload", ErrInvalidInput)
		}
		return nil
	case "":
		return fmt.Errorf("%w: kind is required", ErrInvalidInput)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, d.Kind)
	}
}

func (d Draft) validateImage(maxBytes int64) error {
	p := d.Payload
	if p == nil {
		return fmt.Errorf("%w: image payload is required", ErrInvalidInput)
	}

	size := int64(len(p.Data))
	if size == 0 {
		// Payload ya descargado a un almacén de objetos.
		if p.BlobKey == "" || p.Size <= 0 {
			return fmt.Errorf("%w: image payload is empty", ErrInvalidInput)
		}
		size = p.Size
	}

	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit of %d", ErrInvalidInput, size, maxBytes)
	}

	mediaType, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		return fmt.Errorf("%w: invalid content type %q", ErrInvalidInput, p.ContentType)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("%w: content type %q is not an image", ErrInvalidInput, mediaType)
	}
	return nil
}

// Seal convierte el borrador en un Event con la identidad asignada por el Store.
// Los bytes se copian para que el llamante no pueda mutar el evento.
func (d Draft) Seal(id string, createdAt time.Time) *Event {
	e := &Event{
		ID:          id,
		Kind:        d.Kind,
		SourceLabel: d.SourceLabel,
		CreatedAt:   createdAt,
	}
	if d.Payload != nil {
		p := *d.Payload
		if len(d.Payload.Data) > 0 {
			p.Data = append([]byte(nil), d.Payload.Data...)
			p.Size = int64(len(p.Data))
		}
		e.Payload = &p
	}
	return e
}
