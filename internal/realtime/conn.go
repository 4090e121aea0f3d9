package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/gorilla/websocket"
)

// clientMessage is what dashboard sockets send upstream.
type clientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

type connection struct {
	hub   *Hub
	ws    *websocket.Conn
	actor auth.Actor

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(hub *Hub, ws *websocket.Conn, actor auth.Actor) *connection {
	return &connection{
		hub:   hub,
		ws:    ws,
		actor: actor,
		send:  make(chan []byte, hub.cfg.SendBuffer),
		done:  make(chan struct{}),
	}
}

// signalClose tells the pumps to wind down. The send channel itself is
// never closed so concurrent broadcasters cannot panic on it.
func (c *connection) signalClose() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump consumes client messages until the socket errors or closes, then
// detaches the connection. Runs on the HTTP handler goroutine.
func (c *connection) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(raw)
	}
}

func (c *connection) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(map[string]any{"type": "error", "message": "malformed message"})
		return
	}

	switch msg.Type {
	case "ping":
		c.reply(map[string]any{"type": "pong"})
	case "get_stats":
		c.reply(map[string]any{"type": "stats", "stats": c.hub.Stats()})
	case "subscribe":
		// Channel filtering is advisory; every socket receives the full feed.
		c.reply(map[string]any{"type": "subscribed", "channel": msg.Channel})
	default:
		c.reply(map[string]any{"type": "error", "message": "unknown message type"})
	}
}

// reply queues a control response behind any pending broadcasts.
func (c *connection) reply(v any) {
	select {
	case c.send <- mustJSON(v):
	case <-c.done:
	default:
		// Buffer full; the hub will disconnect this socket on the next
		// broadcast anyway.
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with periodic pings.
func (c *connection) writePump() {
	pingInterval := c.hub.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}
