package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sparkpark/navigator/internal/lib/geo"
	"github.com/sparkpark/navigator/internal/navigation"
	"github.com/sparkpark/navigator/internal/routing"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// Events queued for a slow client before being dropped.
	eventBuffer = 16
)

// clientMessage is what a connected client may send.
type clientMessage struct {
	Type string   `json:"type"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
	Mode string   `json:"mode,omitempty"`
}

// serverMessage wraps outgoing frames. Session events reuse their own shape;
// errors and acks use Message.
type serverMessage struct {
	Type    string               `json:"type"`
	Message string               `json:"message,omitempty"`
	Route   *routing.RouteResult `json:"route,omitempty"`
	Eta     *routing.Eta         `json:"eta,omitempty"`
}

// SessionFactory builds a navigation session for a connection. The emit
// callback receives every route and ETA change.
type SessionFactory func(id string, emit func(navigation.Event)) *navigation.Session

// SessionHub upgrades WebSocket connections and binds each to its own
// navigation session. One connection per session id; a second connection
// with the same id gets its own independent session.
type SessionHub struct {
	log     *zap.SugaredLogger
	factory SessionFactory

	upgrader websocket.Upgrader

	mu     sync.Mutex
	active int
}

// NewSessionHub creates a hub building sessions with factory.
func NewSessionHub(log *zap.SugaredLogger, factory SessionFactory) *SessionHub {
	return &SessionHub{
		log:     log,
		factory: factory,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Active returns the number of connected sessions.
func (h *SessionHub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Handle upgrades the request and runs the session loop until the client
// disconnects.
func (h *SessionHub) Handle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "session", id, "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.active++
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.active--
		h.mu.Unlock()
	}()

	h.log.Infow("session connected", "session", id)

	out := make(chan serverMessage, eventBuffer)
	send := func(msg serverMessage) {
		select {
		case out <- msg:
		default:
			// The client is not keeping up; newer events supersede
			// older ones anyway.
		}
	}
	session := h.factory(id, func(e navigation.Event) {
		send(serverMessage{Type: string(e.Type), Route: e.Route, Eta: e.Eta})
	})
	defer session.Clear()

	done := make(chan struct{})
	go h.writeLoop(conn, id, out, done)

	h.readLoop(conn, id, session, send)
	close(done)
	h.log.Infow("session disconnected", "session", id)
}

func (h *SessionHub) readLoop(conn *websocket.Conn, id string, session *navigation.Session, send func(serverMessage)) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debugw("unreadable session message", "session", id, "error", err)
			continue
		}
		h.dispatch(session, msg, send)
	}
}

func (h *SessionHub) dispatch(session *navigation.Session, msg clientMessage, send func(serverMessage)) {
	ctx := context.Background()

	switch msg.Type {
	case "position":
		if msg.Lat == nil || msg.Lon == nil {
			return
		}
		session.Ingest(geo.Point{Latitude: *msg.Lat, Longitude: *msg.Lon}, time.Now())

	case "set_destination":
		session.SetDestination(ctx, messagePoint(msg))

	case "set_origin":
		session.SetOrigin(ctx, messagePoint(msg))

	case "set_mode":
		mode, err := routing.ParseTravelMode(msg.Mode)
		if err != nil {
			send(serverMessage{Type: "error", Message: err.Error()})
			return
		}
		session.SetMode(ctx, mode)

	case "swap":
		session.Swap(ctx)

	case "clear":
		session.Clear()

	default:
		send(serverMessage{Type: "error", Message: "unknown message type"})
	}
}

func (h *SessionHub) writeLoop(conn *websocket.Conn, id string, out <-chan serverMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debugw("session write failed", "session", id, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func messagePoint(msg clientMessage) *geo.Point {
	if msg.Lat == nil || msg.Lon == nil {
		return nil
	}
	return &geo.Point{Latitude: *msg.Lat, Longitude: *msg.Lon}
}
