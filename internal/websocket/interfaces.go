package websocket

import (
	"context"
	"time"

	"kpidash/internal/presenter"
	"kpidash/internal/services"
)

// Connection is the part of a websocket connection the client uses, so
// tests can substitute a fake.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	RemoteAddr() string
}

// Renderer produces a dashboard model for a selection.
type Renderer interface {
	Render(ctx context.Context, req services.RenderRequest) (*presenter.RenderModel, error)
}
