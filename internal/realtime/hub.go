package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/fleetline/dispatch-backend/pkg/auth"
	"github.com/fleetline/dispatch-backend/pkg/config"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/metrics"
	"github.com/gorilla/websocket"
)

// eventSource is the consuming side of the tracking channel. The Pub/Sub
// subscriber satisfies it; tests feed events directly.
type eventSource interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Stats is the hub snapshot returned to get_stats requests.
type Stats struct {
	Connections     int   `json:"connections"`
	EventsDelivered int64 `json:"events_delivered"`
	EventsDropped   int64 `json:"events_dropped"`
}

// Hub fans tracking events out to authenticated dashboard sockets. One hub
// instance holds one subscription to the tracking channel regardless of how
// many sockets are attached.
type Hub struct {
	source  eventSource
	jwtCfg  config.JWTConfig
	cfg     config.RealtimeConfig
	metrics *metrics.RealtimeMetrics
	logg    *logger.Logger

	upgrader websocket.Upgrader

	mu        sync.RWMutex
	conns     map[*connection]struct{}
	delivered int64
	dropped   int64
}

func NewHub(source eventSource, jwtCfg config.JWTConfig, cfg config.RealtimeConfig, m *metrics.RealtimeMetrics, logg *logger.Logger) (*Hub, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}

	h := &Hub{
		source:  source,
		jwtCfg:  jwtCfg,
		cfg:     cfg,
		metrics: m,
		logg:    logg,
		conns:   map[*connection]struct{}{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h, nil
}

// Run consumes the tracking subscription until ctx is cancelled. Without a
// source the hub still serves sockets, it just has nothing to relay.
func (h *Hub) Run(ctx context.Context) error {
	if h.source == nil {
		<-ctx.Done()
		return nil
	}
	err := h.source.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		h.metrics.IncEventsReceived()
		h.Broadcast(msg.Data)
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Broadcast delivers the payload to every attached socket exactly once.
// Sockets whose buffer is full are disconnected rather than allowed to
// stall the rest.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	snapshot := make([]*connection, 0, len(h.conns))
	for c := range h.conns {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range snapshot {
		select {
		case <-c.done:
			continue
		case c.send <- payload:
			delivered++
		default:
			h.metrics.IncDropped()
			h.mu.Lock()
			h.dropped++
			h.mu.Unlock()
			h.remove(c)
		}
	}

	if delivered > 0 {
		h.metrics.AddEventsDelivered(delivered)
		h.mu.Lock()
		h.delivered += int64(delivered)
		h.mu.Unlock()
	}
}

// Stats returns a point-in-time snapshot of hub activity.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Connections:     len(h.conns),
		EventsDelivered: h.delivered,
		EventsDropped:   h.dropped,
	}
}

// HandleWS authenticates the caller and promotes the request to a tracking
// socket. Authentication happens before any registration: a request with a
// bad token gets the websocket handshake followed immediately by a policy
// violation close, so the client sees a websocket-level rejection instead
// of a broken handshake.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	actor, authErr := h.authenticate(r)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logg.Warn(r.Context(), "websocket upgrade failed")
		return
	}

	if authErr != nil {
		deadline := time.Now().Add(h.cfg.WriteTimeout)
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required")
		_ = ws.WriteControl(websocket.CloseMessage, closeMsg, deadline)
		_ = ws.Close()
		return
	}

	c := newConnection(h, ws, actor)
	h.add(c)

	go c.writePump()
	c.readPump()
}

func (h *Hub) authenticate(r *http.Request) (auth.Actor, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		return auth.Actor{}, errors.New("missing token")
	}
	claims, err := auth.ParseAccessToken(h.jwtCfg, token)
	if err != nil {
		return auth.Actor{}, err
	}
	actor := claims.Actor()
	if !actor.IsDispatchStaff() {
		return auth.Actor{}, errors.New("role not allowed on tracking socket")
	}
	return actor, nil
}

func (h *Hub) add(c *connection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()
	h.metrics.SetConnections(count)
}

// remove detaches a connection; calling it twice for the same connection is
// a no-op.
func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	_, present := h.conns[c]
	if present {
		delete(h.conns, c)
	}
	count := len(h.conns)
	h.mu.Unlock()

	if !present {
		return
	}
	h.metrics.SetConnections(count)
	h.metrics.IncDisconnected()
	c.signalClose()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func mustJSON(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error"}`)
	}
	return payload
}
