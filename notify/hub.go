// Package notify exposes engine state to observers outside the process: a
// WebSocket hub whose clients count as attached observers, and a Redis
// publisher for snapshot fan-out.
package notify

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OperatorFoundation/nahoftu4i/fragment"
	"github.com/OperatorFoundation/nahoftu4i/observability"
	"github.com/OperatorFoundation/nahoftu4i/session"
	"github.com/OperatorFoundation/nahoftu4i/stream"
)

// Engine is the part of the receive engine the hub needs.
type Engine interface {
	Attach(ctx context.Context) error
	Detach(ctx context.Context) error
	SubscribeState() *stream.Subscription[session.Snapshot]
	SubscribeSpots() *stream.Subscription[[]fragment.Spot]
}

// Frame types sent to WebSocket clients.
const (
	FrameState = "state"
	FrameSpots = "spots"
)

// Frame is one JSON message written to a WebSocket client.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	detachWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub serves the observer WebSocket endpoint. Each connected client holds
// one observer reference on the engine for as long as it stays connected,
// which keeps the background countdown suspended.
type Hub struct {
	engine   Engine
	secret   string
	observer observability.Observer
	clients  atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubObserver sets the observer for hub events.
func WithHubObserver(o observability.Observer) HubOption {
	return func(h *Hub) { h.observer = o }
}

// NewHub creates a Hub. An empty secret disables token authentication.
func NewHub(engine Engine, secret string, opts ...HubOption) *Hub {
	h := &Hub{
		engine:   engine,
		secret:   secret,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject := "anonymous"
	if h.secret != "" {
		sub, err := VerifyToken(h.secret, tokenFromRequest(r))
		if err != nil {
			h.emit(r.Context(), EventRejected, observability.LevelWarning, map[string]any{
				"remote": r.RemoteAddr,
			})
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		subject = sub
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.engine.Attach(ctx); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(writeWait))
		return
	}
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), detachWait)
		defer dcancel()
		h.engine.Detach(dctx)
	}()

	h.clients.Add(1)
	defer h.clients.Add(-1)
	h.emit(ctx, EventConnect, observability.LevelInfo, map[string]any{
		"subject": subject,
		"clients": h.Clients(),
	})
	defer h.emit(ctx, EventDisconnect, observability.LevelInfo, map[string]any{"subject": subject})

	states := h.engine.SubscribeState()
	defer states.Close()
	spots := h.engine.SubscribeSpots()
	defer spots.Close()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.writeLoop(ctx, conn, states, spots)
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, states *stream.Subscription[session.Snapshot], spots *stream.Subscription[[]fragment.Spot]) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		var frame Frame
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-states.C():
			if !ok {
				return
			}
			frame = Frame{Type: FrameState, Payload: snap}
		case list, ok := <-spots.C():
			if !ok {
				return
			}
			frame = Frame{Type: FrameSpots, Payload: list}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

func (h *Hub) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	h.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "notify",
		Data:      data,
	})
}
