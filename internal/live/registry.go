package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize    = 32
	DefaultWriteTimeout = 5 * time.Second
)

type RegistryConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// Registry mantiene el conjunto de suscriptores activos del proceso.
// Se crea una vez en main y se inyecta en quien lo necesite.
type Registry struct {
	cfg RegistryConfig
	log *zap.Logger

	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool

	wg sync.WaitGroup
}

func NewRegistry(cfg RegistryConfig, log *zap.Logger) *Registry {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Registry{
		cfg:  cfg,
		log:  log,
		subs: make(map[string]*Subscriber),
	}
}

// Register da de alta un visor activo y arranca su goroutine de entrega.
// El registro pasa a ser dueño del transporte: si falla, lo cierra.
func (r *Registry) Register(t Transport) (*Subscriber, error) {
	return r.register(t, false)
}

// RegisterSink es Register para los reenvíos del servidor; recibe lo mismo que
// un visor pero no cuenta en Viewers.
func (r *Registry) RegisterSink(t Transport) (*Subscriber, error) {
	return r.register(t, true)
}

func (r *Registry) register(t Transport, sink bool) (*Subscriber, error) {
	id := uuid.NewString()
	sub := newSubscriber(id, t, r.cfg.QueueSize, sink)

	if g, ok := t.(Greeter); ok {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
		err := g.Greet(ctx, id)
		cancel()
		if err != nil {
			_ = t.Close()
			return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = t.Close()
		return nil, ErrRegistryClosed
	}
	r.subs[id] = sub
	r.wg.Add(1)
	r.mu.Unlock()

	go r.deliver(sub)

	r.log.Info("Subscriber registered", zap.String("connection_id", id), zap.Bool("sink", sink))
	return sub, nil
}

// Unregister es idempotente; devuelve true sólo en la llamada que lo elimina.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	if err := sub.close(); err != nil {
		r.log.Debug("Transport close failed", zap.String("connection_id", id), zap.Error(err))
	}
	r.log.Info("Subscriber unregistered",
		zap.String("connection_id", id),
		zap.Int64("sent", sub.sent.Load()),
		zap.Int64("dropped", sub.dropped.Load()),
	)
	return true
}

// ForEachActive recorre una foto tomada bajo lectura. Los suscriptores que
// salen durante el recorrido se saltan.
func (r *Registry) ForEachActive(fn func(*Subscriber)) {
	r.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		if s.State() != StateActive {
			continue
		}
		fn(s)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Viewers cuenta sólo los visores conectados.
func (r *Registry) Viewers() int {
	viewers, _ := r.counts()
	return viewers
}

func (r *Registry) Sinks() int {
	_, sinks := r.counts()
	return sinks
}

func (r *Registry) counts() (viewers, sinks int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs {
		if s.sink {
			sinks++
		} else {
			viewers++
		}
	}
	return viewers, sinks
}

func (r *Registry) Stats(id string) (Stats, error) {
	r.mu.RLock()
	sub, ok := r.subs[id]
	r.mu.RUnlock()
	if !ok {
		return Stats{}, ErrSubscriberNotFound
	}
	return sub.Stats(), nil
}

// Close da de baja a todos y espera a que terminen las goroutines de entrega.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Unregister(id)
	}
	r.wg.Wait()
}

// deliver vacía la cola del suscriptor en orden FIFO hacia su transporte.
func (r *Registry) deliver(sub *Subscriber) {
	defer r.wg.Done()

	for {
		select {
		case <-sub.done:
			return
		case n := <-sub.queue:
			if sub.State() != StateActive {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
			err := sub.transport.Send(ctx, n)
			cancel()

			if err != nil {
				r.log.Warn("Live delivery failed, removing subscriber",
					zap.String("connection_id", sub.id),
					zap.String("event_id", n.Event.ID),
					zap.Error(fmt.Errorf("%w: %w", ErrDeliveryFailed, err)),
				)
				r.Unregister(sub.id)
				return
			}
			sub.sent.Add(1)
		}
	}
}
