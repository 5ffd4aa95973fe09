package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/event/domain"
)

// --- Transportes falsos ---

type recordingTransport struct {
	mu       sync.Mutex
	received []domain.Notification
	failOn   int // falla en el envío número N (1-based); 0 nunca
	closed   chan struct{}
	once     sync.Once
	closes   int
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{closed: make(chan struct{})}
}

func (t *recordingTransport) Send(ctx context.Context, n domain.Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failOn > 0 && len(t.received)+1 == t.failOn {
		return errors.New("broken pipe")
	}
	t.received = append(t.received, n)
	return nil
}

func (t *recordingTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	t.mu.Lock()
	t.closes++
	t.mu.Unlock()
	return nil
}

func (t *recordingTransport) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.received))
	for i, n := range t.received {
		out[i] = n.Event.ID
	}
	return out
}

// blockingTransport no termina un envío hasta que vence el contexto o se cierra.
type blockingTransport struct {
	closed chan struct{}
	once   sync.Once
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{closed: make(chan struct{})}
}

func (t *blockingTransport) Send(ctx context.Context, n domain.Notification) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return errors.New("transport closed")
	}
}

func (t *blockingTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

type greetingTransport struct {
	*recordingTransport
	greetErr error
	greeted  string
}

func (t *greetingTransport) Greet(ctx context.Context, id string) error {
	t.greeted = id
	return t.greetErr
}

func notification(id string) domain.Notification {
	return domain.Notification{Type: domain.NotificationNewImage, Event: domain.EventMeta{ID: id}}
}

func newTestBroadcaster(t *testing.T, rcfg RegistryConfig, bcfg BroadcasterConfig) (*Registry, *Broadcaster) {
	t.Helper()
	reg := NewRegistry(rcfg, zap.NewNop())
	b := NewBroadcaster(reg, bcfg, zap.NewNop())
	b.Start(context.Background())
	t.Cleanup(func() {
		b.Stop()
		reg.Close()
	})
	return reg, b
}

// -------------------- Registry --------------------

func TestRegistry_RegisterAndUnregisterIdempotent(t *testing.T) {
	// Arrange
	reg := NewRegistry(RegistryConfig{}, zap.NewNop())
	tr := newRecordingTransport()

	// Act
	sub, err := reg.Register(tr)
	require.NoError(t, err)

	first := reg.Unregister(sub.ID())
	second := reg.Unregister(sub.ID())

	// Assert
	assert.True(t, first)
	assert.False(t, second, "la segunda baja no debe tener efecto")
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, StateClosed, sub.State())
	assert.Equal(t, 1, tr.closes, "el transporte se cierra una sola vez")

	reg.Close()
}

func TestRegistry_SinksAreNotViewers(t *testing.T) {
	// Arrange
	reg, b := newTestBroadcaster(t, RegistryConfig{}, BroadcasterConfig{})
	viewer := newRecordingTransport()
	sink := newRecordingTransport()

	// Act
	_, err := reg.Register(viewer)
	require.NoError(t, err)
	sinkSub, err := reg.RegisterSink(sink)
	require.NoError(t, err)

	// Assert: el sink recibe igual que un visor pero no cuenta como tal
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 1, reg.Viewers())
	assert.Equal(t, 1, reg.Sinks())
	assert.True(t, sinkSub.IsSink())

	b.Publish(domain.Notification{Event: domain.EventMeta{ID: "e1"}})
	assert.Eventually(t, func() bool { return len(sink.ids()) == 1 && len(viewer.ids()) == 1 }, time.Second, 5*time.Millisecond)

	reg.Unregister(sinkSub.ID())
	assert.Equal(t, 0, reg.Sinks())
	assert.Equal(t, 1, reg.Viewers())
}

func TestRegistry_GreeterReceivesConnectionID(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, zap.NewNop())
	defer reg.Close()
	tr := &greetingTransport{recordingTransport: newRecordingTransport()}

	sub, err := reg.Register(tr)

	require.NoError(t, err)
	assert.Equal(t, sub.ID(), tr.greeted)
}

func TestRegistry_GreetFailureRejectsSubscriber(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, zap.NewNop())
	defer reg.Close()
	tr := &greetingTransport{recordingTransport: newRecordingTransport(), greetErr: errors.New("gone")}

	_, err := reg.Register(tr)

	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 1, tr.closes)
}

func TestRegistry_RegisterAfterClose(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, zap.NewNop())
	reg.Close()

	_, err := reg.Register(newRecordingTransport())

	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestRegistry_StatsUnknownSubscriber(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, zap.NewNop())
	defer reg.Close()

	_, err := reg.Stats("nope")

	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	reg, b := newTestBroadcaster(t, RegistryConfig{QueueSize: 4}, BroadcasterConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := reg.Register(newRecordingTransport())
			if !assert.NoError(t, err) {
				return
			}
			b.Publish(notification(fmt.Sprintf("evt-%d", i)))
			// doble baja concurrente con el reparto
			go reg.Unregister(sub.ID())
			reg.Unregister(sub.ID())
		}(i)
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
}

// -------------------- Broadcaster --------------------

func TestBroadcaster_DeliversInFIFOOrder(t *testing.T) {
	// Arrange
	reg, b := newTestBroadcaster(t, RegistryConfig{QueueSize: 64}, BroadcasterConfig{})
	tr := newRecordingTransport()
	_, err := reg.Register(tr)
	require.NoError(t, err)

	want := make([]string, 20)
	for i := range want {
		want[i] = fmt.Sprintf("evt-%02d", i)
	}

	// Act
	for _, id := range want {
		assert.True(t, b.Publish(notification(id)))
	}

	// Assert
	assert.Eventually(t, func() bool { return len(tr.ids()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, tr.ids())
}

func TestBroadcaster_EachSubscriberGetsExactlyOne(t *testing.T) {
	reg, b := newTestBroadcaster(t, RegistryConfig{}, BroadcasterConfig{})
	transports := []*recordingTransport{newRecordingTransport(), newRecordingTransport(), newRecordingTransport()}
	for _, tr := range transports {
		_, err := reg.Register(tr)
		require.NoError(t, err)
	}

	b.Publish(notification("only"))

	for _, tr := range transports {
		assert.Eventually(t, func() bool { return len(tr.ids()) == 1 }, time.Second, 5*time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	for _, tr := range transports {
		assert.Equal(t, []string{"only"}, tr.ids())
	}
}

func TestBroadcaster_LateSubscriberMissesEarlierEvents(t *testing.T) {
	reg, b := newTestBroadcaster(t, RegistryConfig{}, BroadcasterConfig{})
	early := newRecordingTransport()
	_, err := reg.Register(early)
	require.NoError(t, err)

	b.Publish(notification("before"))
	assert.Eventually(t, func() bool { return len(early.ids()) == 1 }, time.Second, 5*time.Millisecond)

	late := newRecordingTransport()
	_, err = reg.Register(late)
	require.NoError(t, err)
	b.Publish(notification("after"))

	assert.Eventually(t, func() bool { return len(late.ids()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"after"}, late.ids())
}

func TestBroadcaster_FailingTransportIsRemovedOthersUnaffected(t *testing.T) {
	// Arrange
	reg, b := newTestBroadcaster(t, RegistryConfig{}, BroadcasterConfig{})
	healthy := newRecordingTransport()
	broken := newRecordingTransport()
	broken.failOn = 1

	_, err := reg.Register(healthy)
	require.NoError(t, err)
	brokenSub, err := reg.Register(broken)
	require.NoError(t, err)

	// Act
	b.Publish(notification("e1"))
	b.Publish(notification("e2"))

	// Assert
	assert.Eventually(t, func() bool { return len(healthy.ids()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return brokenSub.State() == StateClosed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, reg.Len())
	assert.Empty(t, broken.ids())
}

func TestSubscriber_OfferDropsNewestWhenFull(t *testing.T) {
	// Arrange: sin goroutine de entrega la cola no se vacía.
	sub := newSubscriber("s", newRecordingTransport(), 2, false)

	// Act & Assert
	assert.NoError(t, sub.offer(notification("1")))
	assert.NoError(t, sub.offer(notification("2")))
	assert.ErrorIs(t, sub.offer(notification("3")), ErrQueueFull)

	first := <-sub.queue
	second := <-sub.queue
	assert.Equal(t, "1", first.Event.ID)
	assert.Equal(t, "2", second.Event.ID)
	assert.Equal(t, int64(1), sub.Stats().Dropped)
	assert.Equal(t, int64(1), sub.consecutiveDrops.Load())

	assert.NoError(t, sub.offer(notification("4")))
	assert.Equal(t, int64(0), sub.consecutiveDrops.Load(), "un encolado correcto reinicia la racha")
}

func TestSubscriber_OfferAfterClose(t *testing.T) {
	sub := newSubscriber("s", newRecordingTransport(), 1, false)
	require.NoError(t, sub.close())

	assert.ErrorIs(t, sub.offer(notification("1")), ErrSubscriberClosed)
	assert.Equal(t, StateClosed, sub.State())
}

func TestBroadcaster_EvictsSlowSubscriber(t *testing.T) {
	reg, b := newTestBroadcaster(t,
		RegistryConfig{QueueSize: 1, WriteTimeout: 10 * time.Second},
		BroadcasterConfig{EvictAfterDrops: 1},
	)
	slow := newBlockingTransport()
	slowSub, err := reg.Register(slow)
	require.NoError(t, err)

	// Con la cola de 1 y el envío bloqueado, alguna de estas publicaciones se descarta.
	for i := 0; i < 5; i++ {
		b.Publish(notification(fmt.Sprintf("e%d", i)))
	}

	assert.Eventually(t, func() bool { return slowSub.State() == StateClosed }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, reg.Len())
}

// Tres suscriptores, uno bloqueado: los otros dos reciben y el bloqueado sale del registro.
func TestBroadcaster_ThreeSubscribersOneBlocked(t *testing.T) {
	// Arrange
	reg, b := newTestBroadcaster(t,
		RegistryConfig{QueueSize: 4, WriteTimeout: 50 * time.Millisecond},
		BroadcasterConfig{EvictAfterDrops: 1},
	)
	a := newRecordingTransport()
	c := newRecordingTransport()
	blocked := newBlockingTransport()

	_, err := reg.Register(a)
	require.NoError(t, err)
	blockedSub, err := reg.Register(blocked)
	require.NoError(t, err)
	_, err = reg.Register(c)
	require.NoError(t, err)

	// Act
	b.Publish(notification("ring"))

	// Assert
	assert.Eventually(t, func() bool { return len(a.ids()) == 1 && len(c.ids()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return blockedSub.State() == StateClosed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, reg.Len())

	_, err = reg.Stats(blockedSub.ID())
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestBroadcaster_PublishAfterStop(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, zap.NewNop())
	defer reg.Close()
	b := NewBroadcaster(reg, BroadcasterConfig{}, zap.NewNop())
	b.Start(context.Background())

	b.Stop()
	b.Stop()

	assert.False(t, b.Publish(notification("late")))
}

func TestBroadcaster_InboxOverflowDrops(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, zap.NewNop())
	defer reg.Close()
	// Sin Start: nadie vacía el buzón.
	b := NewBroadcaster(reg, BroadcasterConfig{InboxSize: 1}, zap.NewNop())

	assert.True(t, b.Publish(notification("1")))
	assert.False(t, b.Publish(notification("2")))
	assert.Equal(t, int64(1), b.Dropped())
}
