package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polyvault/internal/domain"
	"github.com/alanyoungcy/polyvault/internal/metrics"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

// Message types.
const (
	TypeVault  = "vault"
	TypeStatus = "status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Envelope is every frame the hub sends.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// VaultPayload announces the vault the session is bound to.
type VaultPayload struct {
	Address string `json:"address"`
}

// StatusPayload carries the latest text of one status field.
type StatusPayload struct {
	Field domain.StatusField `json:"field"`
	Text  string             `json:"text"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg lets a client narrow the frame types it receives.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Types  []string `json:"types"`
}

type broadcastMsg struct {
	kind string
	data []byte
}

// Hub fans the current vault and per-action status text out to every
// connected WebSocket client. It implements domain.VaultView and
// domain.StatusSink. New clients receive the last known vault and status
// of every field on connect.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex

	lastMu     sync.Mutex
	lastVault  []byte
	lastStatus map[domain.StatusField][]byte

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHub creates a hub. m may be nil.
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		lastStatus: make(map[domain.StatusField][]byte),
		metrics:    m,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// ShowVault broadcasts the bound vault address.
func (h *Hub) ShowVault(ctx context.Context, vault common.Address) {
	data, ok := h.encode(ctx, Envelope{Type: TypeVault, Payload: VaultPayload{Address: vault.Hex()}})
	if !ok {
		return
	}
	h.lastMu.Lock()
	h.lastVault = data
	h.lastMu.Unlock()
	h.enqueue(ctx, TypeVault, data)
}

// SetStatus broadcasts the latest text of field.
func (h *Hub) SetStatus(ctx context.Context, field domain.StatusField, text string) {
	data, ok := h.encode(ctx, Envelope{Type: TypeStatus, Payload: StatusPayload{Field: field, Text: text}})
	if !ok {
		return
	}
	h.lastMu.Lock()
	h.lastStatus[field] = data
	h.lastMu.Unlock()
	h.enqueue(ctx, TypeStatus, data)
}

func (h *Hub) encode(ctx context.Context, env Envelope) ([]byte, bool) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.ErrorContext(ctx, "encode frame", slog.String("error", err.Error()))
		return nil, false
	}
	return data, true
}

func (h *Hub) enqueue(ctx context.Context, kind string, data []byte) {
	select {
	case h.broadcast <- broadcastMsg{kind: kind, data: data}:
	default:
		h.logger.WarnContext(ctx, "broadcast queue full; dropping frame", slog.String("type", kind))
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.metrics.SetWSClients(0)
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWSClients(n)
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWSClients(n)
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.kind) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("dropping frame for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{TypeVault: true, TypeStatus: true},
	}
	c.sendSnapshot()

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendSnapshot queues the last known frames so a fresh client does not start
// blank.
func (c *client) sendSnapshot() {
	c.hub.lastMu.Lock()
	frames := make([][]byte, 0, 1+len(c.hub.lastStatus))
	if c.hub.lastVault != nil {
		frames = append(frames, c.hub.lastVault)
	}
	for _, f := range []domain.StatusField{domain.FieldCreate, domain.FieldMove, domain.FieldSettle} {
		if data, ok := c.hub.lastStatus[f]; ok {
			frames = append(frames, data)
		}
	}
	c.hub.lastMu.Unlock()

	for _, f := range frames {
		select {
		case c.send <- f:
		default:
		}
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Types {
			c.subs[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Types {
			delete(c.subs, t)
		}
	}
}

func (c *client) isSubscribed(kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[kind]
}

// writePump sends queued frames as text messages and pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
