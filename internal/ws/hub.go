// Package ws delivers consultation notifications to connected users over
// websockets. Delivery is fire-and-forget: an offline user or a full send
// queue drops the frame, and the durable session record remains the source
// of truth the client reconciles against on reconnect.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"advisor-marketplace/backend/internal/service"
	"advisor-marketplace/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one user's websocket connection.
type client struct {
	userID uint
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks connected users and implements service.Notifier. A user has
// at most one connection; a new connection replaces the old one.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]*client
	log     *logger.Logger

	delivered metric.Int64Counter
}

func NewHub(log *logger.Logger) *Hub {
	meter := otel.Meter("advisor-marketplace/ws")
	delivered, _ := meter.Int64Counter("ws_notifications_total",
		metric.WithDescription("Notification frames by delivery outcome"))

	return &Hub{
		clients:   make(map[uint]*client),
		log:       log,
		delivered: delivered,
	}
}

// Notify implements service.Notifier. Undeliverable notifications are
// logged and counted, never propagated.
func (h *Hub) Notify(ctx context.Context, userID uint, n service.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		h.log.LogError(err, "failed to encode notification", "user_id", userID)
		return
	}

	// send channels are closed under the write lock on replacement and
	// shutdown, so the read lock must cover the send itself.
	outcome := "offline"
	h.mu.RLock()
	if c, ok := h.clients[userID]; ok {
		select {
		case c.send <- payload:
			outcome = "sent"
		default:
			outcome = "dropped"
		}
	}
	h.mu.RUnlock()

	h.delivered.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == "dropped" {
		h.log.Warn("notification dropped, send queue full", "user_id", userID, "kind", string(n.Kind))
	}
}

// HandleConnection upgrades the request and binds the connection to the
// authenticated user. Expects JWT middleware to have set userId.
func (h *Hub) HandleConnection(c *gin.Context) {
	userID, ok := c.Get("userId")
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.LogError(err, "websocket upgrade failed")
		return
	}

	cl := &client{
		userID: userID.(uint),
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
	}

	h.register(cl)

	go cl.writePump(h)
	go cl.readPump(h)
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[cl.userID]; ok {
		close(old.send)
		old.conn.Close()
	}
	h.clients[cl.userID] = cl
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[cl.userID]; ok && current == cl {
		delete(h.clients, cl.userID)
		close(cl.send)
	}
}

// Connected reports whether the user currently has a live connection.
func (h *Hub) Connected(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userID]
	return ok
}

// Close tears down all connections, used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, cl := range h.clients {
		close(cl.send)
		cl.conn.Close()
		delete(h.clients, id)
	}
}

// readPump drains inbound frames. The notification channel is one-way;
// inbound payloads are discarded, reads exist to detect disconnects and
// answer pings.
func (cl *client) readPump(h *Hub) {
	defer func() {
		h.unregister(cl)
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket closed unexpectedly", "user_id", cl.userID, "error", err.Error())
			}
			return
		}
	}
}

func (cl *client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
