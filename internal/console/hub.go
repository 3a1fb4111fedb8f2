package console

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/strefethen/vr-console-go/internal/fleet"
	"github.com/strefethen/vr-console-go/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Message types pushed to console clients.
const (
	MessageSnapshot = "snapshot"
	MessageToast    = "toast"
	MessageShake    = "shake"

	// MessageInvalidate tells clients to reload a resource they fetch over HTTP.
	MessageInvalidate = "invalidate"
)

// Message is the envelope written to every console socket.
type Message struct {
	Type      string           `json:"type"`
	Dashboard *fleet.Dashboard `json:"dashboard,omitempty"`
	Toast     *fleet.Toast     `json:"toast,omitempty"`
	Topic     string           `json:"topic,omitempty"`
	At        time.Time        `json:"at"`
}

// SnapshotFunc returns the current dashboard for newly connected clients.
type SnapshotFunc func() fleet.Dashboard

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans console events out to connected websocket clients.
// It implements fleet.Notifier.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	snapshot SnapshotFunc
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewHub creates a hub. snapshot may be nil, in which case new clients wait
// for the next change.
func NewHub(snapshot SnapshotFunc, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:  make(map[string]*client),
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // console UI may be served from another origin
			},
		},
		logger: logger,
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Toast implements fleet.Notifier.
func (h *Hub) Toast(toast fleet.Toast) {
	h.broadcast(Message{Type: MessageToast, Toast: &toast, At: time.Now().UTC()})
}

// Shake implements fleet.Notifier.
func (h *Hub) Shake() {
	h.broadcast(Message{Type: MessageShake, At: time.Now().UTC()})
}

// Changed implements fleet.Notifier.
func (h *Hub) Changed(dashboard fleet.Dashboard) {
	h.broadcast(Message{Type: MessageSnapshot, Dashboard: &dashboard, At: time.Now().UTC()})
}

// Invalidate tells clients that topic is stale.
func (h *Hub) Invalidate(topic string) {
	h.broadcast(Message{Type: MessageInvalidate, Topic: topic, At: time.Now().UTC()})
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	if h.snapshot != nil {
		dashboard := h.snapshot()
		if data, err := json.Marshal(Message{Type: MessageSnapshot, Dashboard: &dashboard, At: time.Now().UTC()}); err == nil {
			c.send <- data
		}
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	metrics.ConsoleClients.Set(0)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConsoleClients.Set(float64(total))
	h.logger.Printf("console client connected: id=%s total=%d", c.id, total)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	total := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		metrics.ConsoleClients.Set(float64(total))
		h.logger.Printf("console client disconnected: id=%s total=%d", c.id, total)
	}
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("console: marshal %s message: %v", msg.Type, err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Printf("console client %s is not keeping up, dropping", c.id)
		h.unregister(c)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients only listen; anything they send is discarded.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
