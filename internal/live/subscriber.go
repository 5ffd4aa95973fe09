package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/davicafu/doorbell/internal/event/domain"
)

var (
	ErrQueueFull          = errors.New("subscriber queue full")
	ErrSubscriberClosed   = errors.New("subscriber closed")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrRegistryClosed     = errors.New("registry closed")
	ErrDeliveryFailed     = errors.New("subscriber delivery failed")
)

// Transport es el canal de salida de un suscriptor (WebSocket, Kafka, NATS...).
// Send se invoca siempre desde una única goroutine por suscriptor.
type Transport interface {
	Send(ctx context.Context, n domain.Notification) error
	Close() error
}

// Greeter es opcional: el registro lo invoca antes de activar al suscriptor.
type Greeter interface {
	Greet(ctx context.Context, connectionID string) error
}

type State int32

const (
	StateActive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Stats es una foto de los contadores de un suscriptor.
type Stats struct {
	ConnectionID string `json:"connectionId"`
	State        string `json:"state"`
	Sent         int64  `json:"sent"`
	Dropped      int64  `json:"dropped"`
	Queued       int    `json:"queued"`
}

// Subscriber es un receptor en vivo con su cola FIFO acotada y privada.
// La cola nunca se cierra: el fin de la entrega se señala con done.
type Subscriber struct {
	id        string
	queue     chan domain.Notification
	transport Transport
	sink      bool // suscriptor del propio servidor (Kafka, NATS...), no un visor

	state            atomic.Int32
	sent             atomic.Int64
	dropped          atomic.Int64
	consecutiveDrops atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(id string, t Transport, queueSize int, sink bool) *Subscriber {
	return &Subscriber{
		id:        id,
		queue:     make(chan domain.Notification, queueSize),
		transport: t,
		sink:      sink,
		done:      make(chan struct{}),
	}
}

func (s *Subscriber) ID() string { return s.id }

// IsSink indica si el suscriptor se dio de alta con RegisterSink.
func (s *Subscriber) IsSink() bool { return s.sink }

func (s *Subscriber) State() State { return State(s.state.Load()) }

// Done se cierra cuando el suscriptor sale del registro.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) Stats() Stats {
	return Stats{
		ConnectionID: s.id,
		State:        s.State().String(),
		Sent:         s.sent.Load(),
		Dropped:      s.dropped.Load(),
		Queued:       len(s.queue),
	}
}

// offer encola sin bloquear. Con la cola llena se descarta la notificación nueva.
func (s *Subscriber) offer(n domain.Notification) error {
	if s.State() != StateActive {
		return ErrSubscriberClosed
	}
	select {
	case s.queue <- n:
		s.consecutiveDrops.Store(0)
		return nil
	default:
		s.dropped.Add(1)
		s.consecutiveDrops.Add(1)
		return ErrQueueFull
	}
}

// close pasa por closing -> closed exactamente una vez.
func (s *Subscriber) close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		close(s.done)
		err = s.transport.Close()
		s.state.Store(int32(StateClosed))
	})
	return err
}
