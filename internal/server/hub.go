package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Message is one entry on the live event feed.
type Message struct {
	Type      string          `json:"type"`
	BoardID   string          `json:"boardId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessageConnected is sent to each client right after it connects.
const MessageConnected = "connected"

// Hub fans committed domain events out to websocket clients. Publish never
// blocks the caller; a full queue drops the message.
type Hub struct {
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewHub creates a hub and starts its broadcast loop. Call Close to stop it.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
	h.wg.Add(1)
	go h.broadcastLoop()
	return h
}

// Publish queues payload for every connected client.
func (h *Hub) Publish(typ, boardID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("dropping unencodable event", "type", typ, "error", err)
		return
	}
	msg := Message{Type: typ, BoardID: boardID, Payload: data, Timestamp: time.Now().UTC()}
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("event queue full, dropping message", "type", typ)
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn("encoding event", "error", err)
				continue
			}

			h.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for c := range h.clients {
				conns = append(conns, c)
			}
			h.clientsMu.RUnlock()

			for _, c := range conns {
				ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
				err := c.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.logger.Debug("event client write failed", "error", err)
					h.remove(c)
				}
			}
		}
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Debug("event client connected", "clients", n)

	hello, _ := json.Marshal(Message{Type: MessageConnected, Timestamp: time.Now().UTC()})
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, hello)
	cancel()

	go h.readLoop(conn)
}

// readLoop discards client frames and notices disconnects.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientsMu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.clientsMu.Unlock()
	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug("event client disconnected", "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the broadcast loop.
func (h *Hub) Close() {
	h.cancel()
	h.clientsMu.Lock()
	for c := range h.clients {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, c)
	}
	h.clientsMu.Unlock()
	h.wg.Wait()
}
