package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/domain"
)

const (
	DefaultInboxSize       = 256
	DefaultEvictAfterDrops = 16
)

type BroadcasterConfig struct {
	InboxSize int
	// EvictAfterDrops da de baja a un suscriptor tras N descartes seguidos; 0 lo desactiva.
	EvictAfterDrops int
}

// Broadcaster reparte cada notificación a todos los suscriptores activos.
// Publish nunca bloquea ni hace I/O: sólo deja el mensaje en el buzón, que un
// único dispatcher vacía en orden de publicación.
type Broadcaster struct {
	registry *Registry
	cfg      BroadcasterConfig
	log      *zap.Logger

	inbox   chan domain.Notification
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started atomic.Bool
	dropped atomic.Int64
}

var _ domain.NotificationPublisher = (*Broadcaster)(nil)

func NewBroadcaster(registry *Registry, cfg BroadcasterConfig, log *zap.Logger) *Broadcaster {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	if cfg.EvictAfterDrops < 0 {
		cfg.EvictAfterDrops = 0
	}
	return &Broadcaster{
		registry: registry,
		cfg:      cfg,
		log:      log,
		inbox:    make(chan domain.Notification, cfg.InboxSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start lanza el dispatcher. Sólo la primera llamada tiene efecto.
func (b *Broadcaster) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go b.run(ctx)
}

// Publish encola la notificación sin bloquear; false si se descartó.
func (b *Broadcaster) Publish(n domain.Notification) bool {
	select {
	case <-b.stop:
		return false
	default:
	}

	select {
	case b.inbox <- n:
		return true
	default:
		b.dropped.Add(1)
		b.log.Warn("Broadcast inbox full, notification dropped",
			zap.String("event_id", n.Event.ID),
			zap.Int("inbox_size", b.cfg.InboxSize),
		)
		return false
	}
}

// Dropped devuelve cuántas notificaciones se descartaron por buzón lleno.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

// Stop detiene el dispatcher tras repartir lo que quede en el buzón.
func (b *Broadcaster) Stop() {
	b.once.Do(func() { close(b.stop) })
	if b.started.Load() {
		<-b.done
	}
}

func (b *Broadcaster) run(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			b.drain()
			return
		case n := <-b.inbox:
			b.fanOut(n)
		}
	}
}

func (b *Broadcaster) drain() {
	for {
		select {
		case n := <-b.inbox:
			b.fanOut(n)
		default:
			return
		}
	}
}

func (b *Broadcaster) fanOut(n domain.Notification) {
	var slow []string

	b.registry.ForEachActive(func(s *Subscriber) {
		err := s.offer(n)
		if err == nil || !errors.Is(err, ErrQueueFull) {
			return
		}
		b.log.Debug("Subscriber queue full, notification dropped",
			zap.String("connection_id", s.ID()),
			zap.String("event_id", n.Event.ID),
		)
		if b.cfg.EvictAfterDrops > 0 && s.consecutiveDrops.Load() >= int64(b.cfg.EvictAfterDrops) {
			slow = append(slow, s.ID())
		}
	})

	for _, id := range slow {
		if b.registry.Unregister(id) {
			b.log.Warn("Slow subscriber evicted", zap.String("connection_id", id))
		}
	}
}
