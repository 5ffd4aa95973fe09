package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/live"
)

const DefaultPingInterval = 30 * time.Second

// LiveHandler sirve el canal en vivo GET /live.
type LiveHandler struct {
	registry     *live.Registry
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	log          *zap.Logger
}

func NewLiveHandler(registry *live.Registry, pingInterval time.Duration, log *zap.Logger) *LiveHandler {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &LiveHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// visores desde cualquier origen, igual que el CORS de la API
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		log:          log,
	}
}

func RegisterLiveRoute(r *gin.Engine, h *LiveHandler) {
	r.GET("/live", h.Serve)
}

// Serve actualiza la conexión, la registra y bloquea hasta que el visor se va
// o el registro lo da de baja.
func (h *LiveHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade ya respondió al cliente
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	transport := NewTransport(conn)
	sub, err := h.registry.Register(transport)
	if err != nil {
		h.log.Warn("Live subscriber rejected", zap.Error(err))
		return
	}
	defer h.registry.Unregister(sub.ID())

	go h.pingLoop(transport, sub)
	h.readLoop(conn, sub)
}

// readLoop descarta lo que mande el visor; su única función es detectar la desconexión.
func (h *LiveHandler) readLoop(conn *websocket.Conn, sub *live.Subscriber) {
	conn.SetReadLimit(512)
	readTimeout := 2 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("Live connection read error", zap.String("connection_id", sub.ID()), zap.Error(err))
			}
			return
		}
	}
}

func (h *LiveHandler) pingLoop(t *Transport, sub *live.Subscriber) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.Done():
			return
		case <-ticker.C:
			if err := t.Ping(); err != nil {
				h.log.Debug("Live ping failed", zap.String("connection_id", sub.ID()), zap.Error(err))
				h.registry.Unregister(sub.ID())
				return
			}
		}
	}
}
