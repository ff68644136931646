// Package realtime mirrors relay traffic to a single connected dashboard.
package realtime

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

// EventIncomingMessage is the event name used for both directions of traffic.
const EventIncomingMessage = "incoming-message"

// Direction tells the dashboard which way a message travelled.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Message is the payload of an incoming-message event.
type Message struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Direction Direction `json:"direction"`
}

// Event is the frame written to the observer socket.
type Event struct {
	Event string  `json:"event"`
	Data  Message `json:"data"`
}

const (
	defaultWriteTimeout = 5 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
)

// Hub owns the single observer slot. Publishing with no observer attached is
// a no-op; events are never queued for later observers.
type Hub struct {
	mu      sync.Mutex
	current *Observer

	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       *logging.Logger
	metrics      *metrics.RelayMetrics
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *logging.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records observer and event metrics.
func WithMetrics(m *metrics.RelayMetrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithAllowedOrigins restricts which browser origins may attach. An empty
// list or "*" accepts any origin.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		allow := map[string]struct{}{}
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				allow = nil
				break
			}
			if origin != "" {
				allow[origin] = struct{}{}
			}
		}
		if len(allow) == 0 {
			h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allow[origin]
			return ok
		}
	}
}

// WithWriteTimeout bounds each socket write.
func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// NewHub creates a hub with an empty observer slot.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: defaultWriteTimeout,
		logger:       logging.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach makes conn the current observer. A previously attached observer is
// displaced and its socket closed.
func (h *Hub) Attach(conn *websocket.Conn) *Observer {
	obs := newObserver(conn, h.writeTimeout)

	h.mu.Lock()
	displaced := h.current
	h.current = obs
	h.mu.Unlock()

	h.metrics.SetObserverConnected(true)
	h.logger.Info("realtime: observer connected", "observer_id", obs.id)

	if displaced != nil {
		h.logger.Info("realtime: observer displaced", "observer_id", displaced.id)
		displaced.close(websocket.ClosePolicyViolation, "superseded by a newer observer")
	}
	return obs
}

// Detach clears the slot only if obs is still the current observer. It
// reports whether the slot was cleared.
func (h *Hub) Detach(obs *Observer) bool {
	if obs == nil {
		return false
	}

	h.mu.Lock()
	cleared := h.current == obs
	if cleared {
		h.current = nil
	}
	h.mu.Unlock()

	if cleared {
		h.metrics.SetObserverConnected(false)
		h.logger.Info("realtime: observer disconnected", "observer_id", obs.id)
	} else {
		h.logger.Debug("realtime: stale observer detach ignored", "observer_id", obs.id)
	}
	return cleared
}

// Current returns the attached observer, or nil.
func (h *Hub) Current() *Observer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Publish pushes msg to the attached observer, best effort. It reports
// whether the event was written.
func (h *Hub) Publish(msg Message) bool {
	obs := h.Current()
	if obs == nil {
		h.metrics.ObserveEvent(string(msg.Direction), false)
		return false
	}

	if err := obs.send(Event{Event: EventIncomingMessage, Data: msg}); err != nil {
		h.metrics.ObserveEvent(string(msg.Direction), false)
		h.logger.Warn("realtime: failed to push event",
			"observer_id", obs.id,
			"direction", msg.Direction,
			"error", err,
		)
		return false
	}
	h.metrics.ObserveEvent(string(msg.Direction), true)
	return true
}

// ServeHTTP upgrades the request and keeps the observer attached until the
// socket closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("realtime: websocket upgrade failed", "error", err)
		return
	}

	obs := h.Attach(conn)
	defer func() {
		h.Detach(obs)
		obs.close(websocket.CloseNormalClosure, "")
	}()

	stop := make(chan struct{})
	defer close(stop)
	go obs.keepAlive(stop)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The dashboard does not send anything meaningful; reading only detects
	// disconnects and services control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("realtime: observer read error", "observer_id", obs.id, "error", err)
			}
			return
		}
	}
}

// Observer is one attached dashboard connection.
type Observer struct {
	id          string
	conn        *websocket.Conn
	connectedAt time.Time

	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newObserver(conn *websocket.Conn, writeTimeout time.Duration) *Observer {
	return &Observer{
		id:           uuid.NewString(),
		conn:         conn,
		connectedAt:  time.Now().UTC(),
		writeTimeout: writeTimeout,
	}
}

// ID identifies the observer in logs.
func (o *Observer) ID() string {
	return o.id
}

// ConnectedAt reports when the observer attached.
func (o *Observer) ConnectedAt() time.Time {
	return o.connectedAt
}

func (o *Observer) send(v any) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if err := o.conn.SetWriteDeadline(time.Now().Add(o.writeTimeout)); err != nil {
		return err
	}
	return o.conn.WriteJSON(v)
}

func (o *Observer) keepAlive(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(o.writeTimeout)
			if err := o.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (o *Observer) close(code int, reason string) {
	o.closeOnce.Do(func() {
		deadline := time.Now().Add(o.writeTimeout)
		_ = o.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = o.conn.Close()
	})
}
