package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apierrors "kpidash/internal/errors"
	"kpidash/internal/infrastructure"
	"kpidash/internal/middleware"
	"kpidash/internal/services"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 << 10

	// Upper bound for one render triggered by a message
	renderTimeout = 30 * time.Second
)

// inbound is a client message: a render selection, optionally tagged with
// an id that is echoed in the reply.
type inbound struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id,omitempty"`
	services.RenderRequest
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub      *Hub
	renderer Renderer
	validate *validator.Validate
	conn     Connection

	// Buffered channel of outbound messages, closed once by closeSend
	send   chan []byte
	sendMu sync.Mutex
	closed bool

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	logger *slog.Logger

	messagesReceived int64
	rendersServed    int64
}

// NewClient creates a client for conn. traceID may be empty.
func NewClient(hub *Hub, renderer Renderer, conn Connection, traceID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	id := uuid.New().String()
	logger = logger.With(
		slog.String("component", "websocket.client"),
		slog.String("client_id", id),
	)
	if traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}

	return &Client{
		hub:         hub,
		renderer:    renderer,
		validate:    middleware.NewValidator(),
		conn:        conn,
		send:        make(chan []byte, 32),
		id:          id,
		traceID:     traceID,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		logger:      logger,
	}
}

func (c *Client) context() context.Context {
	return traceContext(c.traceID)
}

// trySend queues msg without blocking. It reports false when the buffer is
// full or the client is closed.
func (c *Client) trySend(msg []byte) bool {
	if msg == nil {
		return false
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads selections from the connection and answers each with one
// render. It returns when the connection fails or closes.
func (c *Client) ReadPump(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.logger.InfoContext(ctx, "WebSocket client disconnected",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("messages_received", c.messagesReceived),
			slog.Int64("renders", c.rendersServed))
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WarnContext(ctx, "Unexpected WebSocket close error",
					slog.String("error", err.Error()))
			}
			return
		}
		c.messagesReceived++

		reply := c.handle(ctx, message)
		if reply == nil {
			continue
		}
		if !c.trySend(reply) {
			c.logger.WarnContext(ctx, "Client send buffer full, reply dropped")
		}
	}
}

// handle turns one inbound message into the reply to send, or nil for
// heartbeats.
func (c *Client) handle(ctx context.Context, message []byte) []byte {
	var in inbound
	if err := json.Unmarshal(message, &in); err != nil {
		return c.errorReply("", apierrors.InvalidRequestWithError(err))
	}

	switch in.Type {
	case TypeHeartbeat:
		return nil
	case "", TypeRender:
	default:
		return c.errorReply(in.ID, apierrors.NewValidationError("unknown message type: "+in.Type))
	}

	if err := middleware.ValidateStruct(c.validate, in.RenderRequest); err != nil {
		return c.errorReply(in.ID, err)
	}

	renderCtx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	model, err := c.renderer.Render(renderCtx, in.RenderRequest)
	if err != nil {
		c.logger.WarnContext(ctx, "render failed", slog.String("error", err.Error()))
		return c.errorReply(in.ID, err)
	}
	c.rendersServed++

	return envelope(TypeRender, map[string]interface{}{
		"id":    in.ID,
		"model": model,
	}, c.traceID)
}

func (c *Client) errorReply(id string, err error) []byte {
	payload := map[string]interface{}{
		"id":      id,
		"code":    "INTERNAL",
		"message": "render failed",
	}

	var apiErr *apierrors.APIError
	var appErr *apierrors.AppError
	switch {
	case errors.As(err, &apiErr):
		payload["code"] = apiErr.ErrorCode
		payload["message"] = apiErr.Message
		if apiErr.Details != nil {
			payload["details"] = apiErr.Details
		}
	case errors.As(err, &appErr):
		payload["code"] = string(appErr.Type)
		payload["message"] = appErr.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		payload["code"] = "TIMEOUT"
		payload["message"] = "render took too long"
	}

	return envelope(TypeError, payload, c.traceID)
}

// WritePump writes queued messages and keepalive pings to the connection
func (c *Client) WritePump() {
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.ErrorContext(c.context(), "Error writing message to WebSocket",
					slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.context(), "Failed to send ping message",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}
