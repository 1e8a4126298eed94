package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"kpidash/internal/infrastructure"
)

// Message types
const (
	TypeConnection = "connection"
	TypeRender     = "render"
	TypeError      = "error"
	TypeDataUpdate = "data_update"
	TypeHeartbeat  = "heartbeat"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	metrics *infrastructure.DashboardMetrics

	totalConnections int64
	messagesSent     int64

	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *infrastructure.DashboardMetrics) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in the background. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			ctx := client.context()
			h.logger.InfoContext(ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))
			if h.metrics != nil {
				h.metrics.WebSocketConnections.Add(ctx, 1)
			}

			client.trySend(envelope(TypeConnection, map[string]interface{}{
				"status":    "connected",
				"message":   "Connected to KPI dashboard",
				"client_id": client.id,
			}, client.traceID))

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				client.closeSend()
			}
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				ctx := client.context()
				h.logger.InfoContext(ctx, "Client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
				if h.metrics != nil {
					h.metrics.WebSocketConnections.Add(ctx, -1)
				}
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			sent, dropped := 0, 0
			for client := range h.clients {
				if client.trySend(message) {
					sent++
					continue
				}
				// Slow client: drop it rather than block the hub.
				client.closeSend()
				delete(h.clients, client)
				dropped++
			}
			h.messagesSent += int64(sent)
			h.mu.Unlock()

			h.logger.Debug("Broadcast delivered",
				slog.Int("sent", sent),
				slog.Int("dropped", dropped),
				slog.Int("message_size", len(message)))
		}
	}
}

// BroadcastJSON sends a typed message to every connected client
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	msg := envelope(messageType, data, "")
	if msg == nil {
		h.logger.Error("Error marshaling broadcast", slog.String("message_type", messageType))
		return
	}

	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

// BroadcastRefresh tells clients the data behind source changed and the
// dashboard should be requested again.
func (h *Hub) BroadcastRefresh(source string) {
	h.BroadcastJSON(TypeDataUpdate, map[string]interface{}{
		"source": source,
		"action": "refresh",
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		client.closeSend()
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns connection counters
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
	}
}

// Stop ends the hub loop and closes every client
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)

	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
}

// envelope encodes a server message. It returns nil when data cannot be
// encoded.
func envelope(messageType string, data interface{}, traceID string) []byte {
	msg := map[string]interface{}{
		"type":      messageType,
		"data":      data,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if traceID != "" {
		msg["trace_id"] = traceID
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}

func traceContext(traceID string) context.Context {
	ctx := context.Background()
	if traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, traceID)
	}
	return ctx
}
