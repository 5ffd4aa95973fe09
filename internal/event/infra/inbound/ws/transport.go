package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/davicafu/doorbell/internal/event/domain"
	"github.com/davicafu/doorbell/internal/live"
)

const controlTimeout = 5 * time.Second

// helloFrame es el primer mensaje de cada conexión.
type helloFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

// Transport adapta una conexión WebSocket a live.Transport.
// gorilla admite un único escritor concurrente: los mensajes de datos van bajo
// writeMu; WriteControl (ping/close) es seguro en paralelo.
type Transport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

var (
	_ live.Transport = (*Transport)(nil)
	_ live.Greeter   = (*Transport)(nil)
)

func NewTransport(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn}
}

func (t *Transport) Greet(ctx context.Context, connectionID string) error {
	return t.writeJSON(ctx, helloFrame{Type: "hello", ConnectionID: connectionID})
}

func (t *Transport) Send(ctx context.Context, n domain.Notification) error {
	return t.writeJSON(ctx, n)
}

func (t *Transport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlTimeout))
}

// Close envía un cierre normal (best effort) y libera la conexión.
func (t *Transport) Close() error {
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}

func (t *Transport) writeJSON(ctx context.Context, v interface{}) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(controlTimeout)
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteJSON(v)
}
